package portal

import "encoding/json"

// Signal is a recognized widget message.
type Signal string

const (
	// SignalScheduled: the prospect completed booking inside the widget.
	SignalScheduled Signal = "scheduled"
	// SignalLoaded: the widget surface finished rendering.
	SignalLoaded Signal = "loaded"
)

// ParseWidgetSignal decodes a relayed postMessage payload from the embedded
// scheduling widget. Malformed or unrelated messages are ignored, not errors;
// the same browser channel carries arbitrary third-party traffic.
func ParseWidgetSignal(raw []byte) (Signal, bool) {
	var msg struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", false
	}
	switch msg.Event {
	case string(SignalScheduled):
		return SignalScheduled, true
	case string(SignalLoaded):
		return SignalLoaded, true
	default:
		return "", false
	}
}
