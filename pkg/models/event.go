package models

// EventType classifies a change notification.
type EventType string

const (
	EventPut    EventType = "put"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is a server-originated change record. Items always belong to a
// single owner by the time an event reaches a subscriber; the bus
// partitions mixed-owner events before delivery.
type Event struct {
	Type  EventType  `json:"event_type"`
	Items []Metadata `json:"items"`
}
