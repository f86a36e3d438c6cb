// Package event defines the messages pushed to observers over the live
// stream. Every message is a tagged value: a rendered fragment ("event") or
// an aggregate status snapshot ("status").
package event

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the variant carried by an Event.
type Kind string

const (
	KindEvent  Kind = "event"
	KindStatus Kind = "status"
)

// Fragment is a rendered host event ready for display.
type Fragment struct {
	HTML     string `json:"html"`
	Session  string `json:"session"`
	Source   string `json:"source"`
	TaskNote string `json:"task_note"`
}

// Status is the aggregate run statistics shown in the viewer's status bar.
type Status struct {
	Model     string  `json:"model"`
	Session   string  `json:"session"`
	Tokens    int     `json:"tokens"`
	Duration  float64 `json:"duration"`
	Tools     int     `json:"tools"`
	Streaming bool    `json:"streaming"`
}

// Event is immutable once constructed. Only the field matching Kind is
// meaningful.
type Event struct {
	Kind     Kind
	Fragment Fragment
	Status   Status
}

func NewFragment(f Fragment) Event {
	return Event{Kind: KindEvent, Fragment: f}
}

func NewStatus(s Status) Event {
	return Event{Kind: KindStatus, Status: s}
}

type fragmentWire struct {
	Type Kind `json:"type"`
	Fragment
}

type statusWire struct {
	Type   Kind   `json:"type"`
	Status Status `json:"status"`
}

// MarshalJSON encodes the event as a single flat JSON object tagged by
// "type". Status payloads are nested under "status".
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindEvent:
		return json.Marshal(fragmentWire{Type: KindEvent, Fragment: e.Fragment})
	case KindStatus:
		return json.Marshal(statusWire{Type: KindStatus, Status: e.Status})
	default:
		return nil, fmt.Errorf("event: unknown kind %q", e.Kind)
	}
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Type {
	case KindEvent:
		var w fragmentWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*e = NewFragment(w.Fragment)
	case KindStatus:
		var w statusWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*e = NewStatus(w.Status)
	default:
		return fmt.Errorf("event: unknown type %q", head.Type)
	}
	return nil
}
