package model

import (
	"encoding/json"
	"time"
)

// Source identifies the transport that produced an Envelope.
type Source uint8

const (
	SourcePush Source = iota + 1
	SourcePoll
)

func (s Source) String() string {
	switch s {
	case SourcePush:
		return "push"
	case SourcePoll:
		return "poll"
	default:
		return "none"
	}
}

// Envelope is a single unit of inbound data: a decoded push frame or a poll
// response body.
type Envelope struct {
	Category   Category
	Event      string          // Original tag, kept for logging unknown categories
	Payload    json.RawMessage // Opaque to the batching layer
	Source     Source
	Snapshot   bool // Payload replaces the whole category rather than adding to it
	ReceivedAt time.Time
}
