package models

import json "github.com/goccy/go-json"

// EventType discriminates the messages written to the scan stream.
type EventType string

// Event types.
const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message on the scan stream. Exactly one of the payload
// fields is meaningful for a given Type.
type Event struct {
	Results  *ScanResult
	Type     EventType
	Message  string
	Progress float64
}

type progressWire struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message"`
	Progress float64   `json:"progress"`
}

type completeWire struct {
	Results *ScanResult `json:"results"`
	Type    EventType   `json:"type"`
}

type errorWire struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// MarshalJSON encodes only the fields the browser client reads for each type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventComplete:
		return json.Marshal(completeWire{Type: e.Type, Results: e.Results})
	case EventError:
		return json.Marshal(errorWire{Type: e.Type, Message: e.Message})
	default:
		return json.Marshal(progressWire{Type: e.Type, Progress: e.Progress, Message: e.Message})
	}
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// ProgressEvent builds a progress event.
func ProgressEvent(fraction float64, message string) Event {
	return Event{Type: EventProgress, Progress: fraction, Message: message}
}

// CompleteEvent builds the terminal success event.
func CompleteEvent(result ScanResult) Event {
	return Event{Type: EventComplete, Progress: 1, Results: &result}
}

// ErrorEvent builds the terminal failure event.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
