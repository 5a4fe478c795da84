package journal

import "time"

// Cycle is one recorded poll cycle and the events it produced
type Cycle struct {
	ID        string
	StartedAt time.Time
	Mode      string
	Delta     int
	Entries   int
	Events    []Event
}

// Event is a persisted change event
type Event struct {
	CycleID   string
	StartedAt time.Time
	Type      string
	Path      string
}

// String renders the event the same way the watcher prints it.
func (e Event) String() string {
	return e.Type + ": " + e.Path
}
