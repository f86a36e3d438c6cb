// Package hostevent models the unified agent events a host process feeds
// into the live viewer. The host emits loosely-shaped JSON; Parse maps it
// onto a closed record with explicit optional fields so the rest of the
// viewer never handles open-ended maps.
package hostevent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category is the top-level classification of a host event.
type Category string

const (
	CategoryLifecycle Category = "lifecycle"
	CategoryMessage   Category = "message"
	CategoryOperation Category = "operation"
	CategorySystem    Category = "system"
)

// Status values shared by lifecycle and operation events.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Stats carries the usage counters reported by lifecycle events. Zero means
// "not reported".
type Stats struct {
	TotalTokens  int     `json:"total_tokens,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	DurationMs   float64 `json:"duration_ms,omitempty"`
	ToolCalls    int     `json:"tool_calls,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// UnmarshalJSON accepts counters sent as floats ("1200.0", 1.5e3) or as
// numeric strings; fractional parts are truncated.
func (s *Stats) UnmarshalJSON(data []byte) error {
	type plain Stats
	var aux struct {
		plain
		TotalTokens  count `json:"total_tokens"`
		InputTokens  count `json:"input_tokens"`
		OutputTokens count `json:"output_tokens"`
		ToolCalls    count `json:"tool_calls"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Stats(aux.plain)
	s.TotalTokens = int(aux.TotalTokens)
	s.InputTokens = int(aux.InputTokens)
	s.OutputTokens = int(aux.OutputTokens)
	s.ToolCalls = int(aux.ToolCalls)
	return nil
}

// count is an integer counter decoded from any JSON number or numeric string.
type count int

func (c *count) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("counter %s: %w", data, err)
	}
	*c = count(f)
	return nil
}

// Metadata holds provider-specific fields the viewer cares about.
type Metadata struct {
	SessionID string   `json:"session_id,omitempty"`
	ThreadID  string   `json:"thread_id,omitempty"`
	TaskNote  string   `json:"task_note,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Event is a single host event. Fields not relevant to the event's Category
// are left empty.
type Event struct {
	EventID   string    `json:"event_id,omitempty"`
	Category  Category  `json:"category"`
	Source    string    `json:"source,omitempty"`
	Timestamp Timestamp `json:"timestamp,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	TaskNote  string    `json:"task_note,omitempty"`
	Model     string    `json:"model,omitempty"`
	Status    string    `json:"status,omitempty"`

	// lifecycle
	LifecycleType string `json:"lifecycle_type,omitempty"`
	Stats         *Stats `json:"stats,omitempty"`

	// message
	Role        string `json:"role,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Text        string `json:"text,omitempty"`
	IsDelta     bool   `json:"is_delta,omitempty"`

	// operation
	OperationType string `json:"operation_type,omitempty"`
	Name          string `json:"name,omitempty"`
	Input         Text   `json:"input,omitempty"`
	Output        Text   `json:"output,omitempty"`

	// system
	Severity   string `json:"severity,omitempty"`
	Message    string `json:"message,omitempty"`
	IsFallback bool   `json:"is_fallback,omitempty"`

	Metadata Metadata        `json:"metadata,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// Parse decodes one JSON host event.
func Parse(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("parse host event: %w", err)
	}
	return ev, nil
}

// Session returns the session identifier, preferring the top-level field
// over metadata.session_id and metadata.thread_id.
func (e Event) Session() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	if e.Metadata.SessionID != "" {
		return e.Metadata.SessionID
	}
	return e.Metadata.ThreadID
}

// Note returns the task note attached to the event, if any.
func (e Event) Note() string {
	if e.Metadata.TaskNote != "" {
		return e.Metadata.TaskNote
	}
	return e.TaskNote
}

// SourceName returns the event source, or "unknown".
func (e Event) SourceName() string {
	if e.Source == "" {
		return "unknown"
	}
	return e.Source
}

// Text is a string field that tolerates non-string JSON values. Hosts
// sometimes send tool input as an object; it is kept as compact JSON text.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*t = Text(buf.String())
	return nil
}

// Timestamp accepts Unix seconds, Unix milliseconds (values above 1e10), or
// an ISO-8601 string.
type Timestamp struct {
	time.Time
}

// millisThreshold separates second and millisecond epoch values.
const millisThreshold = 1e10

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		ts.Time = parseTimeString(s)
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	ts.Time = fromEpoch(f)
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	secs := float64(ts.UnixNano()) / float64(time.Second)
	return json.Marshal(secs)
}

func fromEpoch(f float64) time.Time {
	if f > millisThreshold {
		f /= 1000
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimeString(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Local()
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}
}
