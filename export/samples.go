package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
	"time"

	"github.com/lucasjlepore/fitview"
)

// fitEpoch is 1989-12-31T00:00:00Z as a Unix time.
const fitEpoch = 631065600

// semicirclesToDegrees converts raw FIT positions.
const semicirclesToDegrees = 180.0 / (1 << 31)

// BuildSamples flattens recordMesgs into samples in file order. Records
// without a timestamp are skipped.
func BuildSamples(msgs fitview.Messages) []Sample {
	records := msgs["recordMesgs"]
	out := make([]Sample, 0, len(records))
	var start time.Time
	for i, rec := range records {
		ts, ok := timestamp(rec["timestamp"])
		if !ok {
			continue
		}
		if start.IsZero() {
			start = ts
		}
		out = append(out, Sample{
			TSUTCISO:     ts.Format(time.RFC3339),
			Timestamp:    ts,
			ElapsedS:     ts.Sub(start).Seconds(),
			PowerW:       firstFloat(rec, "power"),
			HRBPM:        firstFloat(rec, "heartRate"),
			CadenceRPM:   firstFloat(rec, "cadence"),
			SpeedMPS:     firstFloat(rec, "enhancedSpeed", "speed"),
			DistanceM:    firstFloat(rec, "distance"),
			AltitudeM:    firstFloat(rec, "enhancedAltitude", "altitude"),
			TemperatureC: firstFloat(rec, "temperature"),
			LatDeg:       position(rec["positionLat"]),
			LonDeg:       position(rec["positionLong"]),
			RecordIndex:  i,
		})
	}
	return out
}

// timestamp accepts both date and FIT-epoch renderings.
func timestamp(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), !x.IsZero()
	case uint64:
		return time.Unix(int64(x)+fitEpoch, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

func firstFloat(rec fitview.Record, keys ...string) *float64 {
	for _, k := range keys {
		if f, ok := floatAny(rec[k]); ok {
			return &f
		}
	}
	return nil
}

// position accepts degrees (float) or semicircles (integer).
func position(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case int64:
		deg := float64(x) * semicirclesToDegrees
		return &deg
	default:
		return nil
	}
}

func floatAny(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case uint64:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var csvHeader = []string{
	"ts_utc_iso", "elapsed_s", "power_w", "hr_bpm", "cadence_rpm", "speed_mps", "distance_m",
	"altitude_m", "temperature_c", "lat_deg", "lon_deg", "record_index",
}

func marshalCSV(samples []Sample) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, s := range samples {
		row := []string{
			s.TSUTCISO,
			formatFloat(s.ElapsedS),
			formatFloatPtr(s.PowerW),
			formatFloatPtr(s.HRBPM),
			formatFloatPtr(s.CadenceRPM),
			formatFloatPtr(s.SpeedMPS),
			formatFloatPtr(s.DistanceM),
			formatFloatPtr(s.AltitudeM),
			formatFloatPtr(s.TemperatureC),
			formatFloatPtr(s.LatDeg),
			formatFloatPtr(s.LonDeg),
			strconv.Itoa(s.RecordIndex),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
