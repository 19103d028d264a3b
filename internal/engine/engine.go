// Package engine reconciles upstream notifications against local history:
// look up the previous version, render, route, persist, archive. One
// parameterized path serves all three event kinds so the filtering and
// ordering rules cannot drift between them.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/user/chatlog/internal/metrics"
	"github.com/user/chatlog/internal/render"
	"github.com/user/chatlog/internal/resolver"
	"github.com/user/chatlog/internal/types"
)

// Sink receives rendered lines. Satisfied by output.Router.
type Sink interface {
	Write(chatID *int64, line string)
}

// Archiver schedules detached media downloads. Satisfied by media.Archiver.
type Archiver interface {
	Archive(ctx context.Context, msg *types.IncomingMessage)
}

// Deps wires the engine's collaborators.
type Deps struct {
	Store     types.HistoryStore
	Platform  types.Platform
	Resolver  *resolver.Resolver
	Renderer  *render.Renderer
	Sink      Sink
	Archiver  Archiver
	Filter    *Filter
	SaveMedia bool
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Engine processes one notification at a time. The mutex serializes the
// lookup+append critical section so two events for the same (chat, message)
// pair can never see each other's partial writes, even if a caller runs
// notifications concurrently.
type Engine struct {
	deps Deps
	mu   sync.Mutex
}

// New creates an Engine.
func New(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{deps: deps}
}

// Process handles one upstream notification. Failures inside the pipeline
// are logged and the event proceeds with whatever could be salvaged.
func (e *Engine) Process(ctx context.Context, n types.Notification) {
	switch n.Kind {
	case types.KindNew, types.KindEdited:
		e.processMessage(ctx, n)
	case types.KindDeleted:
		e.processDeletions(ctx, n)
	default:
		e.deps.Logger.Warn("unknown notification kind", "kind", n.Kind)
	}
}

// processMessage handles new and edited messages. Order matters: filter
// before any side effect, and for edits the history lookup runs before the
// append so the diff reads the previous version, not the one being written.
func (e *Engine) processMessage(ctx context.Context, n types.Notification) {
	msg := n.Message

	chat, err := e.deps.Platform.ChatByID(ctx, msg.ChatID)
	if err != nil {
		// Display degrades to nothing; the filter works off the raw id.
		e.deps.Logger.Warn("chat resolution failed", "chat_id", msg.ChatID, "error", err)
	}
	if !e.deps.Filter.Enabled(msg.ChatID) {
		e.deps.Metrics.Filtered.Inc()
		return
	}

	user := e.deps.Resolver.ResolveUser(ctx, msg.UserID, &msg.ChatID)

	e.mu.Lock()
	defer e.mu.Unlock()

	var prior *types.Event
	if n.Kind == types.KindEdited {
		prior, err = e.deps.Store.Latest(ctx, &msg.ChatID, msg.ID)
		if err != nil {
			e.deps.Logger.Error("history lookup failed",
				"chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
			e.deps.Metrics.StoreErrors.Inc()
		}
	}

	line := e.deps.Renderer.Line(render.View{
		Kind:      n.Kind,
		At:        n.OccurredAt,
		Chat:      chat,
		MessageID: msg.ID,
		User:      user,
		Text:      msg.Text,
		Media:     msg.Media,
		Prior:     prior,
	})
	e.deps.Sink.Write(&msg.ChatID, line)

	event := buildEvent(n.Kind, n, msg, user)
	if err := e.deps.Store.Append(ctx, event); err != nil {
		e.deps.Logger.Error("history append failed",
			"chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		e.deps.Metrics.StoreErrors.Inc()
	}
	e.deps.Metrics.Events.WithLabelValues(string(n.Kind)).Inc()

	if e.deps.SaveMedia {
		e.deps.Archiver.Archive(ctx, msg)
	}
}

// processDeletions handles a deletion batch. Chat resolution and the filter
// are shared when the notification names its chat; otherwise each id stands
// alone, its chat discovered from history by wildcard lookup.
func (e *Engine) processDeletions(ctx context.Context, n types.Notification) {
	var chat *types.Chat
	if n.ChatID != nil {
		if !e.deps.Filter.Enabled(*n.ChatID) {
			e.deps.Metrics.Filtered.Inc()
			return
		}
		var err error
		chat, err = e.deps.Platform.ChatByID(ctx, *n.ChatID)
		if err != nil {
			e.deps.Logger.Warn("chat resolution failed", "chat_id", *n.ChatID, "error", err)
		}
	}

	for _, messageID := range n.DeletedIDs {
		e.processOneDeletion(ctx, n, chat, messageID)
	}
}

func (e *Engine) processOneDeletion(ctx context.Context, n types.Notification, chat *types.Chat, messageID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Wildcard match when the notification carries no chat id. Risky when
	// two chats share a message id; kept for parity with recorded history.
	prior, err := e.deps.Store.Latest(ctx, n.ChatID, messageID)
	if err != nil {
		e.deps.Logger.Error("history lookup failed", "message_id", messageID, "error", err)
		e.deps.Metrics.StoreErrors.Inc()
	}

	// Filter on whatever chat the lookup yielded. The id is skipped, not
	// the rest of the batch.
	if n.ChatID == nil && prior != nil && prior.ChatID != nil && !e.deps.Filter.Enabled(*prior.ChatID) {
		e.deps.Metrics.Filtered.Inc()
		return
	}

	var user *types.User
	if prior != nil && prior.UserID != nil {
		user = e.deps.Resolver.ResolveUser(ctx, *prior.UserID, n.ChatID)
	}

	line := e.deps.Renderer.Line(render.View{
		Kind:      types.KindDeleted,
		At:        n.OccurredAt,
		Chat:      chat,
		MessageID: messageID,
		User:      user,
		Prior:     prior,
	})
	e.deps.Sink.Write(n.ChatID, line)

	event := &types.Event{
		ID:         types.NewEventID(),
		Kind:       types.KindDeleted,
		OccurredAt: n.OccurredAt,
		ChatID:     n.ChatID,
		MessageID:  messageID,
	}
	if err := e.deps.Store.Append(ctx, event); err != nil {
		e.deps.Logger.Error("history append failed", "message_id", messageID, "error", err)
		e.deps.Metrics.StoreErrors.Inc()
	}
	e.deps.Metrics.Events.WithLabelValues(string(types.KindDeleted)).Inc()
}

// buildEvent assembles the immutable record for a new or edited message.
func buildEvent(kind types.EventKind, n types.Notification, msg *types.IncomingMessage, user *types.User) *types.Event {
	event := &types.Event{
		ID:         types.NewEventID(),
		Kind:       kind,
		OccurredAt: n.OccurredAt,
		ChatID:     &msg.ChatID,
		MessageID:  msg.ID,
	}
	if user != nil {
		event.UserID = &user.ID
	}
	if msg.Text != "" {
		text := msg.Text
		event.Text = &text
	}
	if msg.Media != nil && !msg.Media.WebPreview {
		mediaKind := msg.Media.Kind
		event.MediaType = &mediaKind
		if msg.Media.Filename != "" {
			name := msg.Media.Filename
			event.MediaFilename = &name
		}
	}
	return event
}
