package types

import "github.com/google/uuid"

type EventID string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}
