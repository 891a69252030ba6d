package fitlib

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"
	"github.com/tormoder/fit/dyncrc16"
)

var fixtureStart = time.Date(2026, 2, 26, 23, 0, 0, 0, time.UTC)

func buildTestFIT(t *testing.T) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	require.NoError(t, err)

	activity, err := file.Activity()
	require.NoError(t, err)

	event := fit.NewEventMsg()
	event.Timestamp = fixtureStart
	event.Event = fit.EventTimer
	event.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, event)

	stop := fit.NewEventMsg()
	stop.Timestamp = fixtureStart.Add(10 * time.Minute)
	stop.Event = fit.EventTimer
	stop.EventType = fit.EventTypeStop
	activity.Events = append(activity.Events, stop)

	record := fit.NewRecordMsg()
	record.Timestamp = fixtureStart.Add(30 * time.Second)
	record.HeartRate = 135
	record.Power = 245
	record.Cadence = 92
	activity.Records = append(activity.Records, record)

	var buf bytes.Buffer
	require.NoError(t, fit.Encode(&buf, file, binary.LittleEndian))
	return buf.Bytes()
}

const (
	vendorMesgNum   = 65282
	vendorTimestamp = 1_000_000_000
	vendorValue     = 0x0203
)

// buildVendorFIT assembles an activity file holding a file_id message and
// one message from the manufacturer range, which the profile does not know.
func buildVendorFIT(t *testing.T) []byte {
	t.Helper()
	var records bytes.Buffer
	// file_id definition: local 0, global 0, field 0 (type) enum.
	records.Write([]byte{0x40, 0, 0, 0, 0, 1, 0, 1, 0x00})
	// file_id data: type = activity.
	records.Write([]byte{0x00, byte(fit.FileTypeActivity)})
	// vendor definition: local 1, field 253 uint32, field 1 uint16.
	records.Write([]byte{0x41, 0, 0})
	records.Write(binary.LittleEndian.AppendUint16(nil, vendorMesgNum))
	records.Write([]byte{2, 253, 4, 0x86, 1, 2, 0x84})
	// vendor data.
	records.WriteByte(0x01)
	records.Write(binary.LittleEndian.AppendUint32(nil, vendorTimestamp))
	records.Write(binary.LittleEndian.AppendUint16(nil, vendorValue))
	return wrapFIT(records.Bytes())
}

// wrapFIT adds a 14 byte header and both CRCs around records.
func wrapFIT(records []byte) []byte {
	header := make([]byte, 12, 14)
	header[0] = 14
	header[1] = 0x20
	binary.LittleEndian.PutUint16(header[2:4], 2132)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(records)))
	copy(header[8:12], ".FIT")
	header = binary.LittleEndian.AppendUint16(header, dyncrc16.Checksum(header))

	out := append(header, records...)
	return binary.LittleEndian.AppendUint16(out, dyncrc16.Checksum(out))
}
