package fitlib

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lucasjlepore/fitview"
	"github.com/lucasjlepore/fitview/options"
)

func newTestDecoder(t *testing.T, data []byte) *Decoder {
	t.Helper()
	lib := New(zaptest.NewLogger(t))
	stream, err := lib.NewStream(data)
	require.NoError(t, err)
	dec, err := lib.NewDecoder(stream)
	require.NoError(t, err)
	return dec.(*Decoder)
}

func TestCheckIntegrityAcceptsEncodedFile(t *testing.T) {
	dec := newTestDecoder(t, buildTestFIT(t))
	assert.True(t, dec.CheckIntegrity())
	assert.Empty(t, dec.Diagnostics())
}

func TestCheckIntegrityDiagnostics(t *testing.T) {
	valid := buildTestFIT(t)

	corrupt := bytes.Clone(valid)
	corrupt[len(corrupt)/2] ^= 0xFF

	badHeaderCRC := bytes.Clone(valid)
	badHeaderCRC[12] ^= 0x01

	badType := bytes.Clone(valid)
	copy(badType[8:12], ".TXT")

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"file crc", corrupt, "file CRC mismatch"},
		{"header crc", badHeaderCRC, "header CRC mismatch"},
		{"data type", badType, "invalid data type"},
		{"truncated", valid[:len(valid)-10], "file truncated"},
		{"too short", valid[:8], "file too short"},
		{"header size", append([]byte{9}, valid[1:]...), "invalid header size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := newTestDecoder(t, tt.data)
			require.False(t, dec.CheckIntegrity())
			require.NotEmpty(t, dec.Diagnostics())
			assert.Contains(t, dec.Diagnostics()[0], tt.want)
		})
	}
}

func TestReadConvertsActivity(t *testing.T) {
	dec := newTestDecoder(t, buildTestFIT(t))
	resp, err := dec.Read(options.Defaults())
	require.NoError(t, err)
	require.Empty(t, resp.Errors)

	require.Len(t, resp.Messages["recordMesgs"], 1)
	rec := resp.Messages["recordMesgs"][0]
	assert.Equal(t, uint64(135), rec["heartRate"])
	assert.Equal(t, uint64(245), rec["power"])
	assert.Equal(t, uint64(92), rec["cadence"])
	assert.Equal(t, fixtureStart.Add(30*time.Second), rec["timestamp"])
	assert.NotContains(t, rec, "altitude", "invalid fields are omitted")

	require.Len(t, resp.Messages["eventMesgs"], 2)
	assert.IsType(t, "", resp.Messages["eventMesgs"][0]["eventType"])

	require.Len(t, resp.Messages["fileIdMesgs"], 1)
	assert.IsType(t, "", resp.Messages["fileIdMesgs"][0]["type"])
}

func TestReadHonoursTypeAndDateOptions(t *testing.T) {
	dec := newTestDecoder(t, buildTestFIT(t))
	opts := options.Defaults().Merge(options.DecoderOptions{
		options.ConvertTypesToStrings:   false,
		options.ConvertDateTimesToDates: false,
	})
	resp, err := dec.Read(opts)
	require.NoError(t, err)

	rec := resp.Messages["recordMesgs"][0]
	want := uint64(fixtureStart.Add(30*time.Second).Unix() - fitEpoch)
	assert.Equal(t, want, rec["timestamp"])
	assert.IsType(t, uint64(0), resp.Messages["eventMesgs"][0]["eventType"])
}

func TestReadUnknownMessages(t *testing.T) {
	dec := newTestDecoder(t, buildVendorFIT(t))
	require.True(t, dec.CheckIntegrity(), dec.Diagnostics())

	resp, err := dec.Read(options.Defaults())
	require.NoError(t, err)
	assert.NotContains(t, resp.Messages, "65282")

	opts := options.Defaults().Merge(options.DecoderOptions{options.IncludeUnknownData: true})
	resp, err = dec.Read(opts)
	require.NoError(t, err)
	require.Empty(t, resp.Errors)
	require.Len(t, resp.Messages["65282"], 1)
	assert.Equal(t, fitview.Record{
		"timestamp": time.Unix(vendorTimestamp+fitEpoch, 0).UTC(),
		"1":         uint64(vendorValue),
	}, resp.Messages["65282"][0])
	assert.Len(t, resp.Messages["fileIdMesgs"], 1)
}

func TestReadRejectsGarbage(t *testing.T) {
	dec := newTestDecoder(t, []byte("definitely not a FIT file"))
	assert.False(t, dec.CheckIntegrity())
	_, err := dec.Read(options.Defaults())
	assert.Error(t, err)
}

func TestNewDecoderRewindsStream(t *testing.T) {
	data := buildTestFIT(t)
	r := bytes.NewReader(data)
	_, err := r.Seek(10, 0)
	require.NoError(t, err)

	dec, err := New(nil).NewDecoder(r)
	require.NoError(t, err)
	assert.Equal(t, data, dec.(*Decoder).data)
}
