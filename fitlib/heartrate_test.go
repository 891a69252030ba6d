package fitlib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lucasjlepore/fitview"
)

func TestMergeHeartRates(t *testing.T) {
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	msgs := fitview.Messages{
		"hrMesgs": {
			{
				"timestamp":      start,
				"eventTimestamp": []any{100.0, 100.5, 101.0},
				"filteredBpm":    []any{uint64(120), uint64(124), uint64(128)},
			},
			{
				// no timestamp: placed relative to the first anchor.
				"eventTimestamp": []any{uint64(102 * 1024)},
				"filteredBpm":    []any{uint64(140)},
			},
		},
		"recordMesgs": {
			{"timestamp": start.Add(1 * time.Second)},
			{"timestamp": start.Add(2 * time.Second)},
			{"timestamp": start.Add(3 * time.Second), "heartRate": uint64(99)},
			{"timestamp": start.Add(10 * time.Second)},
		},
	}

	assert.Equal(t, 2, mergeHeartRates(msgs))
	recs := msgs["recordMesgs"]
	assert.Equal(t, uint64(126), recs[0]["heartRate"], "mean of 124 and 128")
	assert.Equal(t, uint64(140), recs[1]["heartRate"])
	assert.Equal(t, uint64(99), recs[2]["heartRate"])
	assert.NotContains(t, recs[3], "heartRate")
}

func TestMergeHeartRatesFitEpochSeconds(t *testing.T) {
	msgs := fitview.Messages{
		"hrMesgs": {{
			"timestamp":      uint64(5000),
			"eventTimestamp": []any{uint64(0), uint64(512)},
			"filteredBpm":    []any{uint64(150), uint64(152)},
		}},
		"recordMesgs": {{"timestamp": uint64(5000)}},
	}
	assert.Equal(t, 1, mergeHeartRates(msgs))
	assert.Equal(t, uint64(150), msgs["recordMesgs"][0]["heartRate"])
}

func TestMergeHeartRatesSkipsNonNumericEvents(t *testing.T) {
	msgs := fitview.Messages{
		"hrMesgs": {{
			"timestamp":      uint64(5000),
			"eventTimestamp": []any{100.0, "invalid", 101.0},
			"filteredBpm":    []any{uint64(120), uint64(200), uint64(130)},
		}},
		"recordMesgs": {
			{"timestamp": uint64(5000)},
			{"timestamp": uint64(5001)},
		},
	}
	assert.Equal(t, 2, mergeHeartRates(msgs))
	recs := msgs["recordMesgs"]
	assert.Equal(t, uint64(120), recs[0]["heartRate"])
	assert.Equal(t, uint64(130), recs[1]["heartRate"], "bpm stays paired with its own event")
}

func TestMergeHeartRatesEventTimestampRollover(t *testing.T) {
	msgs := fitview.Messages{
		"hrMesgs": {
			{
				"timestamp":      uint64(5000),
				"eventTimestamp": []any{uint64(1<<32 - 1024)},
				"filteredBpm":    []any{uint64(150)},
			},
			{
				"eventTimestamp": []any{uint64(0)},
				"filteredBpm":    []any{uint64(160)},
			},
		},
		"recordMesgs": {
			{"timestamp": uint64(5000)},
			{"timestamp": uint64(5001)},
		},
	}
	assert.Equal(t, 2, mergeHeartRates(msgs))
	recs := msgs["recordMesgs"]
	assert.Equal(t, uint64(150), recs[0]["heartRate"])
	assert.Equal(t, uint64(160), recs[1]["heartRate"], "wrapped count continues one second later")
}

func TestMergeHeartRatesNothingToMerge(t *testing.T) {
	assert.Zero(t, mergeHeartRates(fitview.Messages{}))
	assert.Zero(t, mergeHeartRates(fitview.Messages{
		"recordMesgs": {{"timestamp": uint64(1)}},
	}))
}
