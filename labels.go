package fitview

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
)

// unknownMessageKey matches the keys decoders use for messages missing from
// the FIT profile: the bare global message number, or unknown_<number>.
var unknownMessageKey = regexp.MustCompile(`^(?:unknown_)?(\d+)$`)

// vendorMessageLabels names undocumented global message numbers commonly
// written by Garmin devices.
var vendorMessageLabels = map[int]string{
	13:  "Device Settings (Undocumented)",
	22:  "Device Used",
	79:  "User Metrics",
	104: "Device Status (Battery)",
	113: "Sensor Info",
	140: "Activity Metrics",
	141: "EPO Status",
	147: "Sensor Settings",
	216: "Time In Zone",
	233: "Garmin Internal",
	288: "Monitoring HR Data",
	325: "Heart Rate Variability Status",
	327: "Sleep Data",
}

// LabeledMessages is a decoded message map plus human-readable labels for
// vendor-unknown message types, keyed like Messages.
type LabeledMessages struct {
	Messages Messages
	Labels   map[string]string
}

// ApplyUnknownMessageLabels returns a new map holding every entry of msgs
// and a label for each vendor-unknown message type. Record lists are kept
// as they are. A nil map is treated as empty. msgs is not modified.
func ApplyUnknownMessageLabels(msgs Messages) LabeledMessages {
	out := LabeledMessages{
		Messages: make(Messages, len(msgs)),
		Labels:   map[string]string{},
	}
	for key, records := range msgs {
		out.Messages[key] = slices.Clone(records)
		if label, ok := UnknownMessageLabel(key); ok {
			out.Labels[key] = label
		}
	}
	return out
}

// UnknownMessageLabel returns the label for a vendor-unknown message key.
// ok is false for keys that do not follow the unknown-message convention.
func UnknownMessageLabel(key string) (label string, ok bool) {
	m := unknownMessageKey.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	num, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	if name, ok := vendorMessageLabels[num]; ok {
		return fmt.Sprintf("%s (%d)", name, num), true
	}
	return fmt.Sprintf("Unknown Message %d", num), true
}
