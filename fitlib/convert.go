package fitlib

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/tormoder/fit"

	"github.com/lucasjlepore/fitview"
	"github.com/lucasjlepore/fitview/options"
)

// fitEpoch is 1989-12-31T00:00:00Z as a Unix time.
const fitEpoch = 631065600

var (
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	timeType     = reflect.TypeOf(time.Time{})
	fitPkgPath   = reflect.TypeOf(fit.File{}).PkgPath()
)

// converter turns decoded fit messages into generic records according to
// the decoder options.
type converter struct {
	scale      bool
	subFields  bool
	components bool
	strings    bool
	dates      bool
}

func newConverter(opts options.DecoderOptions) converter {
	return converter{
		scale:      opts.Enabled(options.ApplyScaleAndOffset),
		subFields:  opts.Enabled(options.ExpandSubFields),
		components: opts.Enabled(options.ExpandComponents),
		strings:    opts.Enabled(options.ConvertTypesToStrings),
		dates:      opts.Enabled(options.ConvertDateTimesToDates),
	}
}

// file converts the common messages of f plus those of its typed file
// (activity, course, workout...).
func (c converter) file(f *fit.File) fitview.Messages {
	out := fitview.Messages{}
	c.collect(out, reflect.ValueOf(f).Elem())
	if typed := typedFile(f); typed.IsValid() {
		c.collect(out, typed.Elem())
	}
	return out
}

// typedFile calls the accessor matching the file type, such as
// (*fit.File).Activity, and returns its result.
func typedFile(f *fit.File) reflect.Value {
	v := reflect.ValueOf(f)
	t := v.Type()
	for i := range t.NumMethod() {
		mt := t.Method(i).Type
		if mt.NumIn() != 1 || mt.NumOut() != 2 || mt.Out(1) != errorType {
			continue
		}
		ret := mt.Out(0)
		if ret.Kind() != reflect.Pointer || ret.Elem().Kind() != reflect.Struct || !strings.HasSuffix(ret.Elem().Name(), "File") {
			continue
		}
		out := v.Method(i).Call(nil)
		if !out[1].IsNil() || out[0].IsNil() {
			continue
		}
		return out[0]
	}
	return reflect.Value{}
}

// collect appends every message held by the struct v, whether as a value,
// a pointer or a slice of pointers.
func (c converter) collect(out fitview.Messages, v reflect.Value) {
	t := v.Type()
	for i := range t.NumField() {
		if !t.Field(i).IsExported() {
			continue
		}
		fv := v.Field(i)
		switch {
		case isMsgType(fv.Type()) && fv.CanAddr():
			c.add(out, fv.Addr())
		case fv.Kind() == reflect.Pointer && isMsgType(fv.Type().Elem()):
			if !fv.IsNil() {
				c.add(out, fv)
			}
		case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Pointer && isMsgType(fv.Type().Elem().Elem()):
			for j := range fv.Len() {
				if m := fv.Index(j); !m.IsNil() {
					c.add(out, m)
				}
			}
		}
	}
}

func isMsgType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.PkgPath() == fitPkgPath && strings.HasSuffix(t.Name(), "Msg")
}

func (c converter) add(out fitview.Messages, msg reflect.Value) {
	rec := c.message(msg)
	if len(rec) == 0 {
		return
	}
	key := messageKey(msg.Type().Elem())
	out[key] = append(out[key], rec)
}

// messageKey maps fit.RecordMsg to "recordMesgs".
func messageKey(t reflect.Type) string {
	return lowerFirst(strings.TrimSuffix(t.Name(), "Msg")) + "Mesgs"
}

// message converts the message pointed to by pv. Invalid fields are omitted.
func (c converter) message(pv reflect.Value) fitview.Record {
	rec := fitview.Record{}
	sv := pv.Elem()
	st := sv.Type()
	for i := range st.NumField() {
		sf := st.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := lowerFirst(sf.Name)
		if c.scale {
			if v, ok := scaledField(pv, sf.Name); ok {
				if v != nil {
					rec[name] = v
				}
				continue
			}
		}
		if v, ok := c.value(sv.Field(i)); ok {
			rec[name] = v
		}
	}
	if c.subFields {
		c.expandSubFields(pv, rec)
	}
	if !c.components {
		dropExpandedComponents(rec)
	}
	return rec
}

// scaledField calls Get<name>Scaled when the message defines it. ok is
// false when there is no such accessor; v is nil when the field is invalid.
func scaledField(pv reflect.Value, name string) (v any, ok bool) {
	m := pv.MethodByName("Get" + name + "Scaled")
	if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() != 1 {
		return nil, false
	}
	switch x := m.Call(nil)[0].Interface().(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, true
		}
		return x, true
	case []float64:
		out := make([]any, 0, len(x))
		valid := false
		for _, f := range x {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				out = append(out, nil)
				continue
			}
			out = append(out, f)
			valid = true
		}
		if !valid {
			return nil, true
		}
		return out, true
	default:
		return nil, false
	}
}

// expandSubFields resolves dynamic fields through their Get<Field>
// accessors and stores them under the name of the resolved type.
func (c converter) expandSubFields(pv reflect.Value, rec fitview.Record) {
	t := pv.Type()
	for i := range t.NumMethod() {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, "Get") || strings.HasSuffix(m.Name, "Scaled") {
			continue
		}
		mt := m.Type
		if mt.NumIn() != 1 || mt.NumOut() != 1 || mt.Out(0).Kind() != reflect.Interface {
			continue
		}
		out := pv.Method(i).Call(nil)[0]
		if out.IsNil() {
			continue
		}
		inner := out.Elem()
		name := lowerFirst(strings.TrimPrefix(m.Name, "Get"))
		if it := inner.Type(); it.PkgPath() == fitPkgPath && it.Name() != "" {
			name = lowerFirst(it.Name())
		}
		if v, ok := c.value(inner); ok {
			rec[name] = v
		}
	}
}

// dropExpandedComponents removes enhanced* fields that duplicate a base
// field still present in rec.
func dropExpandedComponents(rec fitview.Record) {
	for key := range rec {
		base, ok := strings.CutPrefix(key, "enhanced")
		if !ok || base == "" {
			continue
		}
		if _, has := rec[lowerFirst(base)]; has {
			delete(rec, key)
		}
	}
}

// value converts one field. ok is false for invalid or empty values.
func (c converter) value(v reflect.Value) (any, bool) {
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if t.IsZero() || fit.IsBaseTime(t) {
			return nil, false
		}
		if c.dates {
			return t.UTC(), true
		}
		return uint64(t.Unix() - fitEpoch), true
	}
	if v, ok, handled := c.position(v); handled {
		return v, ok
	}

	switch v.Kind() {
	case reflect.String:
		s := v.String()
		return s, s != ""
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		u := v.Uint()
		if u == invalidUint(v.Type().Bits()) {
			return nil, false
		}
		if s, ok := c.enumString(v); ok {
			return s, true
		}
		return u, true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		i := v.Int()
		if i == invalidInt(v.Type().Bits()) {
			return nil, false
		}
		if s, ok := c.enumString(v); ok {
			return s, true
		}
		return i, true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return nil, false
		}
		out := make([]any, v.Len())
		valid := false
		for i := range v.Len() {
			if e, ok := c.value(v.Index(i)); ok {
				out[i] = e
				valid = true
			}
		}
		return out, valid
	default:
		return nil, false
	}
}

// position converts fit.Latitude and fit.Longitude values, which carry
// semicircles and expose Degrees. handled is false for other types.
func (c converter) position(v reflect.Value) (out any, ok, handled bool) {
	semi := v.MethodByName("Semicircles")
	deg := v.MethodByName("Degrees")
	if !semi.IsValid() || !deg.IsValid() || semi.Type().NumIn() != 0 || deg.Type().NumIn() != 0 {
		return nil, false, false
	}
	if inv := v.MethodByName("Invalid"); inv.IsValid() && inv.Type().NumIn() == 0 {
		if inv.Call(nil)[0].Bool() {
			return nil, false, true
		}
	}
	if c.scale {
		d := deg.Call(nil)[0].Float()
		if math.IsNaN(d) {
			return nil, false, true
		}
		return d, true, true
	}
	return semi.Call(nil)[0].Int(), true, true
}

// enumString renders named fit types through their String method.
func (c converter) enumString(v reflect.Value) (string, bool) {
	if !c.strings || v.Type().PkgPath() != fitPkgPath || !v.Type().Implements(stringerType) {
		return "", false
	}
	return lowerFirst(v.Interface().(fmt.Stringer).String()), true
}

func invalidUint(bits int) uint64 {
	return math.MaxUint64 >> (64 - bits)
}

func invalidInt(bits int) int64 {
	return math.MaxInt64 >> (64 - bits)
}

// unknownMessages adds the messages the FIT profile does not describe,
// keyed by global message number. Fields are keyed by field number.
func (c converter) unknownMessages(out fitview.Messages, raw []rawMessage, known func(uint16) bool) {
	for _, m := range raw {
		if known(m.Global) {
			continue
		}
		rec := fitview.Record{}
		for _, f := range m.Fields {
			if f.Invalid {
				continue
			}
			if f.Num == timestampFieldNum && m.Timestamp != 0 {
				rec["timestamp"] = c.timestamp(m.Timestamp)
				continue
			}
			rec[strconv.Itoa(int(f.Num))] = f.Value
		}
		if len(rec) == 0 {
			continue
		}
		key := strconv.Itoa(int(m.Global))
		out[key] = append(out[key], rec)
	}
}

func (c converter) timestamp(ts uint32) any {
	if c.dates {
		return time.Unix(int64(ts)+fitEpoch, 0).UTC()
	}
	return uint64(ts)
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	// Keep leading acronyms readable: "HRV" -> "hrv", "Hrs" -> "hrs".
	upper := 0
	for _, ch := range s {
		if !unicode.IsUpper(ch) {
			break
		}
		upper++
	}
	if upper > 1 && upper == len(s) {
		return strings.ToLower(s)
	}
	return string(unicode.ToLower(r)) + s[n:]
}
