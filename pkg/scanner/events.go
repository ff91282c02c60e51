package scanner

import "encoding/json"

// EventType discriminates scan event frames.
type EventType string

// Event types, in the order they can first appear in a stream.
const (
	EventLog      EventType = "log"
	EventRange    EventType = "range"
	EventChecking EventType = "checking"
	EventHit      EventType = "hit"
	EventStopped  EventType = "stopped"
	EventDone     EventType = "done"
)

// Event is one frame of the scan stream. Events are generated in strict
// temporal order and every stream ends with exactly one of stopped or done.
type Event struct {
	Type EventType `json:"type"`

	// log
	Msg string `json:"msg,omitempty"`

	// range
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`

	// checking / hit
	URL   string `json:"url,omitempty"`
	Index int    `json:"i,omitempty"`
	Total int    `json:"total,omitempty"`

	// checking / hit / stopped / done. No omitempty: a terminal frame must
	// carry "found":0 when nothing was validated.
	Found int `json:"found"`

	// stopped
	Reason string `json:"reason,omitempty"`
}

// Terminal reports whether the event ends a scan stream.
func (e Event) Terminal() bool {
	return e.Type == EventStopped || e.Type == EventDone
}

// Encode serializes the event to its wire form.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// LogEvent builds a diagnostic event.
func LogEvent(msg string) Event {
	return Event{Type: EventLog, Msg: msg}
}

// RangeEvent announces the first and last candidate URLs of a scan.
func RangeEvent(first, last string) Event {
	return Event{Type: EventRange, First: first, Last: last}
}

// CheckingEvent announces the probe about to be issued.
func CheckingEvent(url string, found, i, total int) Event {
	return Event{Type: EventChecking, URL: url, Found: found, Index: i, Total: total}
}

// HitEvent reports a validated URL.
func HitEvent(url string, found int) Event {
	return Event{Type: EventHit, URL: url, Found: found}
}

// StoppedEvent terminates a scan that ended early.
func StoppedEvent(reason string, found int) Event {
	return Event{Type: EventStopped, Reason: reason, Found: found}
}

// DoneEvent terminates a scan that exhausted its range.
func DoneEvent(found int) Event {
	return Event{Type: EventDone, Found: found}
}
