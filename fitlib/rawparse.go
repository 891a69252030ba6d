package fitlib

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	compressedTimeMask         = 0x1F
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14

	timestampFieldNum = 253
)

type baseType uint8

const (
	baseEnum    baseType = 0x00
	baseSint8   baseType = 0x01
	baseUint8   baseType = 0x02
	baseSint16  baseType = 0x83
	baseUint16  baseType = 0x84
	baseSint32  baseType = 0x85
	baseUint32  baseType = 0x86
	baseString  baseType = 0x07
	baseFloat32 baseType = 0x88
	baseFloat64 baseType = 0x89
	baseUint8z  baseType = 0x0A
	baseUint16z baseType = 0x8B
	baseUint32z baseType = 0x8C
	baseByte    baseType = 0x0D
	baseSint64  baseType = 0x8E
	baseUint64  baseType = 0x8F
	baseUint64z baseType = 0x90
)

var baseSizes = map[baseType]int{
	baseEnum: 1, baseSint8: 1, baseUint8: 1, baseString: 1, baseUint8z: 1, baseByte: 1,
	baseSint16: 2, baseUint16: 2, baseUint16z: 2,
	baseSint32: 4, baseUint32: 4, baseFloat32: 4, baseUint32z: 4,
	baseFloat64: 8, baseSint64: 8, baseUint64: 8, baseUint64z: 8,
}

type fieldDef struct {
	num  uint8
	size uint8
	base baseType
}

type localDef struct {
	global    uint16
	arch      binary.ByteOrder
	fields    []fieldDef
	devFields []fieldDef
}

// rawField is one field of a data message decoded from its base type only.
type rawField struct {
	Num     uint8
	Value   any
	Invalid bool
}

// rawMessage is one data message as written, without profile knowledge.
type rawMessage struct {
	Global uint16
	// Timestamp is the FIT timestamp in effect for the message (field 253 or
	// the compressed header offset), 0 when none is known.
	Timestamp uint32
	Fields    []rawField
}

// scanResult is the outcome of scanning the data records of a FIT file.
// Framing errors stop the scan; field errors are collected and skipped.
type scanResult struct {
	Messages []rawMessage
	Errors   []error
}

type scanner struct {
	data          []byte
	offset        int
	defs          map[uint8]localDef
	lastTimestamp uint32
	lastOffset    int32
	res           scanResult
}

// scanRecords walks the data records of the first FIT file in data.
func scanRecords(data []byte) scanResult {
	start, size, err := dataSection(data)
	if err != nil {
		return scanResult{Errors: []error{err}}
	}
	s := &scanner{
		data:   data[start : start+size],
		offset: int(start),
		defs:   make(map[uint8]localDef),
	}
	s.scan()
	return s.res
}

// dataSection returns the bounds of the record section described by the header.
func dataSection(data []byte) (start, size uint32, err error) {
	if len(data) < headerSizeNoCRC {
		return 0, 0, errors.Newf("fit file too short: %d bytes", len(data))
	}
	hs := data[0]
	if hs != headerSizeNoCRC && hs != headerSizeCRC {
		return 0, 0, errors.Newf("invalid fit header size: %d", hs)
	}
	if len(data) < int(hs) {
		return 0, 0, errors.Newf("truncated fit header: need %d bytes", hs)
	}
	size = binary.LittleEndian.Uint32(data[4:8])
	if uint64(hs)+uint64(size) > uint64(len(data)) {
		return 0, 0, errors.Newf("fit file truncated: have %d bytes, header declares %d", len(data), uint64(hs)+uint64(size)+2)
	}
	return uint32(hs), size, nil
}

func (s *scanner) fail(err error) {
	s.res.Errors = append(s.res.Errors, err)
}

func (s *scanner) scan() {
	pos := 0
	for index := 1; pos < len(s.data); index++ {
		start := pos
		header := s.data[pos]
		pos++

		var err error
		switch {
		case header&compressedHeaderMask != 0:
			local := (header & compressedLocalMesgNumMask) >> 5
			def, ok := s.defs[local]
			if !ok {
				s.fail(errors.Newf("record %d at byte %d: no definition for local message %d", index, s.offset+start, local))
				return
			}
			s.advanceCompressed(header & compressedTimeMask)
			pos, err = s.dataMessage(pos, def, true)
		case header&mesgDefinitionMask != 0:
			pos, err = s.definition(pos, header)
		default:
			local := header & localMesgNumMask
			def, ok := s.defs[local]
			if !ok {
				s.fail(errors.Newf("record %d at byte %d: no definition for local message %d", index, s.offset+start, local))
				return
			}
			pos, err = s.dataMessage(pos, def, false)
		}
		if err != nil {
			s.fail(errors.Wrapf(err, "record %d at byte %d", index, s.offset+start))
			return
		}
	}
}

func (s *scanner) take(pos, n int) ([]byte, int, error) {
	if pos+n > len(s.data) {
		return nil, pos, errors.Newf("truncated: need %d bytes, have %d", n, len(s.data)-pos)
	}
	return s.data[pos : pos+n], pos + n, nil
}

func (s *scanner) definition(pos int, header uint8) (int, error) {
	fixed, pos, err := s.take(pos, 5)
	if err != nil {
		return pos, err
	}
	def := localDef{}
	switch fixed[1] {
	case 0:
		def.arch = binary.LittleEndian
	case 1:
		def.arch = binary.BigEndian
	default:
		return pos, errors.Newf("invalid architecture byte %d", fixed[1])
	}
	def.global = def.arch.Uint16(fixed[2:4])

	n := int(fixed[4])
	def.fields = make([]fieldDef, 0, n)
	for range n {
		var raw []byte
		if raw, pos, err = s.take(pos, 3); err != nil {
			return pos, err
		}
		def.fields = append(def.fields, fieldDef{num: raw[0], size: raw[1], base: normalizeBaseType(raw[2])})
	}

	if header&devDataMask != 0 {
		var cnt []byte
		if cnt, pos, err = s.take(pos, 1); err != nil {
			return pos, err
		}
		for range int(cnt[0]) {
			var raw []byte
			if raw, pos, err = s.take(pos, 3); err != nil {
				return pos, err
			}
			def.devFields = append(def.devFields, fieldDef{num: raw[0], size: raw[1], base: baseByte})
		}
	}
	s.defs[header&localMesgNumMask] = def
	return pos, nil
}

func (s *scanner) advanceCompressed(offset uint8) {
	if s.lastTimestamp == 0 {
		return
	}
	o := int32(offset)
	s.lastTimestamp += uint32((o - s.lastOffset) & compressedTimeMask)
	s.lastOffset = o
}

func (s *scanner) dataMessage(pos int, def localDef, compressed bool) (int, error) {
	msg := rawMessage{Global: def.global, Fields: make([]rawField, 0, len(def.fields))}
	for _, fd := range def.fields {
		var raw []byte
		var err error
		if raw, pos, err = s.take(pos, int(fd.size)); err != nil {
			return pos, err
		}
		f, err := decodeRawField(raw, fd, def.arch)
		if err != nil {
			s.fail(errors.Wrapf(err, "message %d field %d", def.global, fd.num))
			continue
		}
		if fd.num == timestampFieldNum && !f.Invalid {
			if ts, ok := f.Value.(uint64); ok {
				s.lastTimestamp = uint32(ts)
				s.lastOffset = int32(ts & compressedTimeMask)
			}
		}
		msg.Fields = append(msg.Fields, f)
	}
	for _, fd := range def.devFields {
		var err error
		if _, pos, err = s.take(pos, int(fd.size)); err != nil {
			return pos, err
		}
	}
	if compressed || hasField(msg.Fields, timestampFieldNum) {
		msg.Timestamp = s.lastTimestamp
	}
	s.res.Messages = append(s.res.Messages, msg)
	return pos, nil
}

func hasField(fields []rawField, num uint8) bool {
	for _, f := range fields {
		if f.Num == num && !f.Invalid {
			return true
		}
	}
	return false
}

// decodeRawField decodes raw by base type. Scalars are normalized to
// uint64, int64 or float64; multi-element fields become []any.
func decodeRawField(raw []byte, fd fieldDef, arch binary.ByteOrder) (rawField, error) {
	f := rawField{Num: fd.num}
	switch fd.base {
	case baseString:
		str := nullTerminated(raw)
		f.Value = str
		f.Invalid = str == ""
		return f, nil
	case baseByte:
		out := make([]any, len(raw))
		invalid := true
		for i, b := range raw {
			out[i] = uint64(b)
			invalid = invalid && b == 0xFF
		}
		f.Value, f.Invalid = out, invalid
		return f, nil
	}

	size, ok := baseSizes[fd.base]
	if !ok {
		return f, errors.Newf("unknown base type 0x%02X", uint8(fd.base))
	}
	if len(raw)%size != 0 {
		return f, errors.Newf("size %d not divisible by base size %d", len(raw), size)
	}

	count := len(raw) / size
	values := make([]any, 0, count)
	invalid := true
	for i := range count {
		v, bad := decodeSingleValue(raw[i*size:(i+1)*size], fd.base, arch)
		values = append(values, v)
		invalid = invalid && bad
	}
	f.Invalid = invalid
	if count == 1 {
		f.Value = values[0]
	} else {
		f.Value = values
	}
	return f, nil
}

func decodeSingleValue(raw []byte, bt baseType, arch binary.ByteOrder) (any, bool) {
	switch bt {
	case baseEnum, baseUint8:
		return uint64(raw[0]), raw[0] == 0xFF
	case baseSint8:
		v := int8(raw[0])
		return int64(v), v == 0x7F
	case baseSint16:
		v := int16(arch.Uint16(raw))
		return int64(v), v == 0x7FFF
	case baseUint16:
		v := arch.Uint16(raw)
		return uint64(v), v == 0xFFFF
	case baseSint32:
		v := int32(arch.Uint32(raw))
		return int64(v), v == 0x7FFFFFFF
	case baseUint32:
		v := arch.Uint32(raw)
		return uint64(v), v == 0xFFFFFFFF
	case baseFloat32:
		bits := arch.Uint32(raw)
		return float64(math.Float32frombits(bits)), bits == 0xFFFFFFFF
	case baseFloat64:
		bits := arch.Uint64(raw)
		return math.Float64frombits(bits), bits == 0xFFFFFFFFFFFFFFFF
	case baseUint8z:
		return uint64(raw[0]), raw[0] == 0
	case baseUint16z:
		v := arch.Uint16(raw)
		return uint64(v), v == 0
	case baseUint32z:
		v := arch.Uint32(raw)
		return uint64(v), v == 0
	case baseSint64:
		v := int64(arch.Uint64(raw))
		return v, v == 0x7FFFFFFFFFFFFFFF
	case baseUint64:
		v := arch.Uint64(raw)
		return v, v == 0xFFFFFFFFFFFFFFFF
	case baseUint64z:
		v := arch.Uint64(raw)
		return v, v == 0
	default:
		return nil, true
	}
}

// normalizeBaseType maps legacy base type bytes without the endian flag to
// their canonical values.
func normalizeBaseType(b byte) baseType {
	switch b & 0x1F {
	case 0x03:
		return baseSint16
	case 0x04:
		return baseUint16
	case 0x05:
		return baseSint32
	case 0x06:
		return baseUint32
	case 0x08:
		return baseFloat32
	case 0x09:
		return baseFloat64
	case 0x0B:
		return baseUint16z
	case 0x0C:
		return baseUint32z
	case 0x0E:
		return baseSint64
	case 0x0F:
		return baseUint64
	case 0x10:
		return baseUint64z
	default:
		return baseType(b & 0x1F)
	}
}

func nullTerminated(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
