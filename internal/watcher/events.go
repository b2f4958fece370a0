package watcher

import (
	"time"
)

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileEvent is one coalesced filesystem change. When several raw events
// hit the same path inside a debounce window, the last one wins.
type FileEvent struct {
	Path      string
	Type      EventType
	Timestamp time.Time
}
