package fitlib

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRecordsVendorFile(t *testing.T) {
	res := scanRecords(buildVendorFIT(t))
	require.Empty(t, res.Errors)
	require.Len(t, res.Messages, 2)

	fileID := res.Messages[0]
	assert.Equal(t, uint16(0), fileID.Global)
	assert.Equal(t, []rawField{{Num: 0, Value: uint64(4)}}, fileID.Fields)

	vendor := res.Messages[1]
	assert.Equal(t, uint16(vendorMesgNum), vendor.Global)
	assert.Equal(t, uint32(vendorTimestamp), vendor.Timestamp)
	assert.Equal(t, []rawField{
		{Num: 253, Value: uint64(vendorTimestamp)},
		{Num: 1, Value: uint64(vendorValue)},
	}, vendor.Fields)
}

func TestScanRecordsEncodedFile(t *testing.T) {
	res := scanRecords(buildTestFIT(t))
	require.Empty(t, res.Errors)

	counts := map[uint16]int{}
	for _, m := range res.Messages {
		counts[m.Global]++
	}
	assert.Equal(t, 2, counts[21], "event messages")
	assert.Equal(t, 1, counts[20], "record messages")
}

func TestScanRecordsReportsFramingErrors(t *testing.T) {
	// data message for a local type that was never defined.
	res := scanRecords(wrapFIT([]byte{0x03, 0x00}))
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "no definition for local message 3")
	assert.Empty(t, res.Messages)

	res = scanRecords([]byte{14, 0x20})
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "too short")
}

func TestScanRecordsKeepsMessagesBeforeTruncation(t *testing.T) {
	data := buildVendorFIT(t)
	records := data[14 : len(data)-2]
	res := scanRecords(wrapFIT(records[:len(records)-1]))
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "truncated")
	assert.Len(t, res.Messages, 1)
}

func TestDecodeRawFieldInvalidSentinels(t *testing.T) {
	f, err := decodeRawField([]byte{0xFF, 0xFF}, fieldDef{num: 7, size: 2, base: baseUint16}, binary.LittleEndian)
	require.NoError(t, err)
	assert.True(t, f.Invalid)

	f, err = decodeRawField([]byte{0, 0, 0, 0}, fieldDef{num: 2, size: 4, base: baseUint32z}, binary.LittleEndian)
	require.NoError(t, err)
	assert.True(t, f.Invalid)

	_, err = decodeRawField([]byte{1, 2, 3}, fieldDef{num: 1, size: 3, base: baseUint16}, binary.LittleEndian)
	assert.Error(t, err)
}
