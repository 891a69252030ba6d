package fitlib

import (
	"math"
	"time"

	"github.com/lucasjlepore/fitview"
)

const (
	hrKey     = "hrMesgs"
	recordKey = "recordMesgs"
	// eventTimestampScale is the resolution of hr event timestamps (1/1024 s).
	eventTimestampScale = 1024
	// eventTimestampRange is the span of a 32-bit event timestamp in seconds.
	eventTimestampRange = float64(1<<32) / eventTimestampScale
)

type beat struct {
	at  float64 // seconds since the FIT epoch
	bpm float64
}

// mergeHeartRates fills heartRate on records from the beat-to-beat data in
// hrMesgs, as written by chest straps that buffer beats while out of range.
// Records that already carry a heart rate are left alone. Each record gets
// the mean bpm of the beats since the previous record.
func mergeHeartRates(msgs fitview.Messages) int {
	beats := collectBeats(msgs[hrKey])
	records := msgs[recordKey]
	if len(beats) == 0 || len(records) == 0 {
		return 0
	}

	merged := 0
	prev := math.Inf(-1)
	next := 0
	for _, rec := range records {
		ts, ok := seconds(rec["timestamp"])
		if !ok {
			continue
		}
		lo := prev
		if math.IsInf(lo, -1) {
			lo = ts - 1
		}
		prev = ts

		for next < len(beats) && beats[next].at <= lo {
			next++
		}
		sum, n := 0.0, 0
		for i := next; i < len(beats) && beats[i].at <= ts; i++ {
			sum += beats[i].bpm
			n++
		}
		if n == 0 {
			continue
		}
		if _, has := rec["heartRate"]; has {
			continue
		}
		rec["heartRate"] = uint64(math.Round(sum / float64(n)))
		merged++
	}
	return merged
}

// collectBeats anchors event timestamps to wall time using the first hr
// message that carries both a timestamp and event timestamps. Event
// timestamps are 32-bit counts that wrap about every 48.5 days; a drop of
// more than half that range is taken as a wrap.
func collectBeats(hrs []fitview.Record) []beat {
	var (
		out    []beat
		offset float64
		have   bool
		roll   float64
		last   = math.NaN()
	)
	for _, hr := range hrs {
		events := eventSeconds(hr["eventTimestamp"])
		for i, ev := range events {
			if math.IsNaN(ev) {
				continue
			}
			if !math.IsNaN(last) && ev+roll < last-eventTimestampRange/2 {
				roll += eventTimestampRange
			}
			events[i] = ev + roll
			last = events[i]
		}
		first := math.NaN()
		for _, ev := range events {
			if !math.IsNaN(ev) {
				first = ev
				break
			}
		}
		if math.IsNaN(first) {
			continue
		}
		if ts, ok := seconds(hr["timestamp"]); ok && !have {
			offset = ts - first
			have = true
		}
		if !have {
			continue
		}
		bpms, _ := hr["filteredBpm"].([]any)
		for i, ev := range events {
			if i >= len(bpms) {
				break
			}
			if math.IsNaN(ev) {
				continue
			}
			bpm, ok := number(bpms[i])
			if !ok || bpm == 0 {
				continue
			}
			out = append(out, beat{at: offset + ev, bpm: bpm})
		}
	}
	return out
}

// eventSeconds reads event timestamps, which are float seconds when scaling
// was applied and raw 1/1024 s counts otherwise. Entries that are not
// numbers read as NaN so positions still line up with filteredBpm.
func eventSeconds(v any) []float64 {
	var vals []any
	switch x := v.(type) {
	case []any:
		vals = x
	case nil:
		return nil
	default:
		vals = []any{x}
	}
	out := make([]float64, len(vals))
	for i, e := range vals {
		switch n := e.(type) {
		case float64:
			out[i] = n
		case uint64:
			out[i] = float64(n) / eventTimestampScale
		default:
			out[i] = math.NaN()
		}
	}
	return out
}

// seconds reads a record timestamp as seconds since the FIT epoch.
func seconds(v any) (float64, bool) {
	switch x := v.(type) {
	case time.Time:
		return float64(x.Unix()-fitEpoch) + float64(x.Nanosecond())/1e9, true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case uint64:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
