// Package options declares the FIT decoder options, their defaults, and the
// validation applied to options read from callers and persistence stores.
package options

import (
	"maps"
	"sort"
)

// Option names recognised by the decoder.
const (
	ApplyScaleAndOffset     = "apply_scale_and_offset"
	ExpandSubFields         = "expand_sub_fields"
	ExpandComponents        = "expand_components"
	ConvertTypesToStrings   = "convert_types_to_strings"
	ConvertDateTimesToDates = "convert_date_times_to_dates"
	IncludeUnknownData      = "include_unknown_data"
	MergeHeartRates         = "merge_heart_rates"
)

// Kind is the declared value type of an option.
type Kind string

const (
	KindBoolean Kind = "boolean"
)

// Spec describes one decoder option.
type Spec struct {
	Type        Kind   `json:"type"`
	Default     bool   `json:"default"`
	Description string `json:"description"`
}

// Schema is the single source of truth for decoder options.
// It must not be modified at runtime.
var Schema = map[string]Spec{
	ApplyScaleAndOffset: {
		Type:        KindBoolean,
		Default:     true,
		Description: "Apply the profile scale and offset to raw field values",
	},
	ExpandSubFields: {
		Type:        KindBoolean,
		Default:     true,
		Description: "Resolve dynamic sub-fields using their reference fields",
	},
	ExpandComponents: {
		Type:        KindBoolean,
		Default:     true,
		Description: "Keep fields expanded from components (enhanced speed, altitude)",
	},
	ConvertTypesToStrings: {
		Type:        KindBoolean,
		Default:     true,
		Description: "Convert enum values to their profile names",
	},
	ConvertDateTimesToDates: {
		Type:        KindBoolean,
		Default:     true,
		Description: "Convert FIT timestamps to UTC dates instead of seconds since the FIT epoch",
	},
	IncludeUnknownData: {
		Type:        KindBoolean,
		Default:     false,
		Description: "Include messages and fields not described by the FIT profile",
	},
	MergeHeartRates: {
		Type:        KindBoolean,
		Default:     true,
		Description: "Merge heart rate samples from HR messages into record messages",
	},
}

// DecoderOptions is the flat set of boolean decoder flags keyed by option name.
type DecoderOptions map[string]bool

// Names returns the schema option names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Schema))
	for name := range Schema {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns a fully populated DecoderOptions from schema defaults.
func Defaults() DecoderOptions {
	out := make(DecoderOptions, len(Schema))
	for name, spec := range Schema {
		out[name] = spec.Default
	}
	return out
}

// Enabled reports whether the named option is set. Unset options fall back
// to the schema default.
func (o DecoderOptions) Enabled(name string) bool {
	if v, ok := o[name]; ok {
		return v
	}
	return Schema[name].Default
}

// Clone returns an independent copy.
func (o DecoderOptions) Clone() DecoderOptions {
	if o == nil {
		return DecoderOptions{}
	}
	return maps.Clone(o)
}

// Merge returns a copy of o with overrides applied on top. Overrides are not
// validated.
func (o DecoderOptions) Merge(overrides DecoderOptions) DecoderOptions {
	out := o.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// ToMap converts the options to a generic map for persistence stores.
func (o DecoderOptions) ToMap() map[string]any {
	out := make(map[string]any, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}
