package types

import (
	"strings"
	"time"
)

// EventKind tags one observed notification. The string values are persisted
// in the history store, so they must never change.
type EventKind string

const (
	KindNew     EventKind = "new_message"
	KindEdited  EventKind = "message_edited"
	KindDeleted EventKind = "message_deleted"
)

// Event is one immutable history record. Edits and deletions are layered as
// new Events on top of history, never as mutations of a prior row.
type Event struct {
	ID            EventID   `db:"id"`
	Kind          EventKind `db:"type"`
	OccurredAt    time.Time `db:"-"`
	ChatID        *int64    `db:"chat_id"`
	MessageID     int64     `db:"message_id"`
	UserID        *int64    `db:"user_id"`
	Text          *string   `db:"text"`
	MediaType     *string   `db:"media_type"`
	MediaFilename *string   `db:"media_filename"`
}

// HasMedia reports whether the event carries a media tag.
func (e *Event) HasMedia() bool {
	return e.MediaType != nil && *e.MediaType != ""
}

// Media describes an attachment on an incoming message. A web page preview is
// media in the platform's eyes but not in ours: it is neither tagged in the
// rendered line nor archived.
type Media struct {
	Kind       string
	Filename   string
	WebPreview bool
	// FileID is the platform's opaque download reference; empty when the
	// media is not downloadable (polls, locations, previews).
	FileID string
}

// Chat is a resolved conversation entity (group, channel or direct chat).
type Chat struct {
	ID       int64
	Username string
	Title    string
}

// DisplayName prefers the public username, falling back to the title.
func (c *Chat) DisplayName() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Title
}

// User is a resolved author entity.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName prefers the public username, falling back to the full name.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return strings.TrimSpace(name)
}

// IncomingMessage is the payload of a new or edited message notification.
type IncomingMessage struct {
	ChatID int64
	ID     int64
	UserID int64 // 0 when the author is unknown (e.g. anonymous channel post)
	Text   string
	Media  *Media
}

// Notification is one delivery from the upstream event source. New and edited
// notifications carry a single Message; deletion notifications carry a batch
// of message ids and may not know their origin chat.
type Notification struct {
	Kind       EventKind
	OccurredAt time.Time
	ChatID     *int64
	Message    *IncomingMessage
	DeletedIDs []int64
}
