package connection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickgao/tradewatch/internal/model"
)

// EventSocketOpened is the control frame the server sends after the upgrade.
const EventSocketOpened = "SOCKET_OPENED"

// DecodeError describes a push frame that could not be turned into an envelope.
type DecodeError struct {
	Reason string
	Frame  []byte
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses a push frame. Tags that do not name a category decode to an
// envelope with Category model.Unknown so the registry can count them.
func Decode(data []byte, receivedAt time.Time) (model.Envelope, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return model.Envelope{}, &DecodeError{Reason: "malformed json", Frame: data, Err: err}
	}
	if f.Event == "" {
		return model.Envelope{}, &DecodeError{Reason: "missing event", Frame: data}
	}

	cat := model.ParseEvent(f.Event)
	env := model.Envelope{
		Category:   cat,
		Event:      f.Event,
		Payload:    f.Data,
		Source:     model.SourcePush,
		Snapshot:   cat.Valid() && !cat.Incremental(),
		ReceivedAt: receivedAt,
	}
	if f.Event == EventSocketOpened {
		return env, nil
	}
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return model.Envelope{}, &DecodeError{Reason: "missing data", Frame: data}
	}
	return env, nil
}
