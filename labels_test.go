package fitview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUnknownMessageLabelsEmpty(t *testing.T) {
	for _, in := range []Messages{nil, {}} {
		got := ApplyUnknownMessageLabels(in)
		assert.Equal(t, Messages{}, got.Messages)
		assert.Empty(t, got.Labels)
	}
}

func TestApplyUnknownMessageLabelsKnownPassThrough(t *testing.T) {
	in := Messages{
		"recordMesgs": {
			{"heartRate": uint64(135), "power": uint64(245)},
			{"heartRate": uint64(140)},
		},
		"sessionMesgs": {{"sport": "cycling"}},
	}
	got := ApplyUnknownMessageLabels(in)
	assert.Equal(t, in, got.Messages)
	assert.Empty(t, got.Labels)
}

func TestApplyUnknownMessageLabelsAnnotatesVendorMessages(t *testing.T) {
	vendor := []Record{{"0": uint64(1)}, {"0": uint64(2)}}
	in := Messages{
		"recordMesgs": {{"heartRate": uint64(135)}},
		"104":         vendor,
		"unknown_65282": {{"3": "x"}},
	}
	got := ApplyUnknownMessageLabels(in)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, vendor, got.Messages["104"])
	assert.Equal(t, in["recordMesgs"], got.Messages["recordMesgs"])
	assert.Equal(t, map[string]string{
		"104":           "Device Status (Battery) (104)",
		"unknown_65282": "Unknown Message 65282",
	}, got.Labels)
}

func TestApplyUnknownMessageLabelsDoesNotMutateInput(t *testing.T) {
	in := Messages{"233": {{"1": uint64(7)}}}
	got := ApplyUnknownMessageLabels(in)
	got.Messages["233"] = append(got.Messages["233"], Record{"extra": true})
	assert.Len(t, in["233"], 1)
}

func TestUnknownMessageLabel(t *testing.T) {
	_, ok := UnknownMessageLabel("recordMesgs")
	assert.False(t, ok)
	_, ok = UnknownMessageLabel("unknown_")
	assert.False(t, ok)

	label, ok := UnknownMessageLabel("140")
	assert.True(t, ok)
	assert.Equal(t, "Activity Metrics (140)", label)
}
