package types

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Platform lookups when the platform's entity
// cache has no record of the requested id.
var ErrNotFound = errors.New("entity not found")

// HistoryStore is the durable append-only log of observed Events.
type HistoryStore interface {
	// Append inserts an immutable record. Rows are never updated or deleted.
	Append(ctx context.Context, event *Event) error
	// Latest returns the most recent Event for (chatID, messageID), ordered
	// by insertion. A nil chatID matches across all chats (wildcard). Returns
	// (nil, nil) when no history exists.
	Latest(ctx context.Context, chatID *int64, messageID int64) (*Event, error)
}

// Platform is the remote messaging platform: entity resolution, participant
// refresh and media download. Implementations carry their own timeout and
// retry contract; callers treat any failure as recoverable.
type Platform interface {
	ChatByID(ctx context.Context, chatID int64) (*Chat, error)
	// UserByID returns ErrNotFound (possibly wrapped) when the id is not in
	// the platform's cache; a participant refresh may warm it.
	UserByID(ctx context.Context, userID int64) (*User, error)
	// RefreshParticipants re-fetches the member list of a chat so that
	// subsequent UserByID calls can succeed. The aggressive mode performs a
	// deeper sweep at higher cost.
	RefreshParticipants(ctx context.Context, chatID int64, aggressive bool) error
	// Download archives the media attached to a message into dir.
	Download(ctx context.Context, msg *IncomingMessage, dir string) error
}

// Source delivers notifications from the platform's live event stream, one
// at a time in arrival order, until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, handle func(Notification)) error
}
