// Package resolver turns opaque user ids into entities. The platform's id
// cache is chat-scoped and may be cold for ids unseen outside a chat's
// member list, so lookups escalate through participant refreshes.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/user/chatlog/internal/types"
)

// strategy is one tier of the escalation: an optional cache-warming step
// followed by a direct lookup.
type strategy struct {
	name    string
	prepare func(ctx context.Context, p types.Platform, chatID int64) error
}

// Tiers are tried in order; adding or removing one is a matter of editing
// this list.
var strategies = []strategy{
	{name: "direct"},
	{
		name: "refresh",
		prepare: func(ctx context.Context, p types.Platform, chatID int64) error {
			return p.RefreshParticipants(ctx, chatID, false)
		},
	},
	{
		name: "aggressive_refresh",
		prepare: func(ctx context.Context, p types.Platform, chatID int64) error {
			return p.RefreshParticipants(ctx, chatID, true)
		},
	},
}

// Resolver resolves user entities with escalating retries.
type Resolver struct {
	platform types.Platform
	log      *slog.Logger
}

// New creates a Resolver backed by the given platform.
func New(platform types.Platform, log *slog.Logger) *Resolver {
	return &Resolver{platform: platform, log: log}
}

// ResolveUser looks up userID, escalating through participant refreshes of
// chatID when the platform reports the id as unknown. Exhausting all tiers
// is not an error: unresolved authors render without an author field, so the
// result is simply nil. Tiers that need a chat context are skipped when
// chatID is nil.
func (r *Resolver) ResolveUser(ctx context.Context, userID int64, chatID *int64) *types.User {
	if userID == 0 {
		return nil
	}

	for _, s := range strategies {
		if s.prepare != nil {
			if chatID == nil {
				return nil
			}
			if err := s.prepare(ctx, r.platform, *chatID); err != nil {
				r.log.Debug("participant refresh failed",
					"strategy", s.name, "chat_id", *chatID, "error", err)
				continue
			}
		}

		user, err := r.platform.UserByID(ctx, userID)
		if err == nil {
			return user
		}
		if !errors.Is(err, types.ErrNotFound) {
			// Transient platform failure; a refresh will not help.
			r.log.Warn("user lookup failed", "user_id", userID, "error", err)
			return nil
		}
	}

	r.log.Debug("user unresolved after all strategies", "user_id", userID)
	return nil
}
