// Package feed is the per-room change feed: an in-process bus with bounded
// subscriber queues plus optional transports that carry events between
// instances.
package feed

import (
	"encoding/json"
	"time"
)

type EntityKind string

const (
	EntityRoom       EntityKind = "room"
	EntityAttachment EntityKind = "attachment"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent describes one committed mutation. Revision is set on room
// events and orders content commits for a code.
type ChangeEvent struct {
	Entity   EntityKind      `json:"entity"`
	RoomCode string          `json:"room_code"`
	Change   ChangeKind      `json:"change"`
	Revision int64           `json:"revision,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	At       time.Time       `json:"at"`
}

// NewEvent snapshots payload into an event.
func NewEvent(entity EntityKind, change ChangeKind, code string, revision int64, payload any, at time.Time) (ChangeEvent, error) {
	ev := ChangeEvent{Entity: entity, Change: change, RoomCode: code, Revision: revision, At: at}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.Payload = b
	}
	return ev, nil
}
