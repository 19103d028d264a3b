// Package telegram adapts the Bot API to the engine's Source and Platform
// contracts: it long-polls the update stream, maps updates to notifications,
// and maintains the entity cache that identity resolution works against.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/chatlog/internal/types"
)

// Adapter bridges Telegram to the reconciliation engine.
type Adapter struct {
	bot  *tgbotapi.BotAPI
	log  *slog.Logger
	http *http.Client

	mu    sync.RWMutex
	users map[int64]*types.User
	chats map[int64]*types.Chat
	seen  map[int64]map[int64]struct{} // chat id -> user ids observed there
}

// New creates a Telegram adapter.
func New(token string, log *slog.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(log)
	a.bot = bot
	return a, nil
}

func newAdapter(log *slog.Logger) *Adapter {
	return &Adapter{
		log:   log,
		http:  &http.Client{Timeout: 2 * time.Minute},
		users: make(map[int64]*types.User),
		chats: make(map[int64]*types.Chat),
		seen:  make(map[int64]map[int64]struct{}),
	}
}

// Run long-polls for updates and hands each mapped notification to handle,
// in arrival order, until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context, handle func(types.Notification)) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	for {
		select {
		case update := <-updates:
			if n, ok := a.mapUpdate(update); ok {
				handle(n)
			}
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// mapUpdate converts one Bot API update into a Notification, warming the
// entity cache from whatever the update carries.
func (a *Adapter) mapUpdate(update tgbotapi.Update) (types.Notification, bool) {
	switch {
	case update.Message != nil:
		return a.mapMessage(types.KindNew, update.Message), true
	case update.ChannelPost != nil:
		return a.mapMessage(types.KindNew, update.ChannelPost), true
	case update.EditedMessage != nil:
		return a.mapMessage(types.KindEdited, update.EditedMessage), true
	case update.EditedChannelPost != nil:
		return a.mapMessage(types.KindEdited, update.EditedChannelPost), true
	default:
		return types.Notification{}, false
	}
}

func (a *Adapter) mapMessage(kind types.EventKind, m *tgbotapi.Message) types.Notification {
	a.observe(m)

	occurred := int64(m.Date)
	if kind == types.KindEdited && m.EditDate != 0 {
		occurred = int64(m.EditDate)
	}

	var userID int64
	if m.From != nil {
		userID = m.From.ID
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}

	chatID := m.Chat.ID
	return types.Notification{
		Kind:       kind,
		OccurredAt: time.Unix(occurred, 0).UTC(),
		ChatID:     &chatID,
		Message: &types.IncomingMessage{
			ChatID: chatID,
			ID:     int64(m.MessageID),
			UserID: userID,
			Text:   text,
			Media:  mediaFrom(m),
		},
	}
}

// observe caches the chat and author entities carried by a message.
func (a *Adapter) observe(m *tgbotapi.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if m.Chat != nil {
		a.chats[m.Chat.ID] = chatEntity(m.Chat)
	}
	if m.From != nil {
		a.users[m.From.ID] = userEntity(m.From)
		if m.Chat != nil {
			if a.seen[m.Chat.ID] == nil {
				a.seen[m.Chat.ID] = make(map[int64]struct{})
			}
			a.seen[m.Chat.ID][m.From.ID] = struct{}{}
		}
	}
}

// ChatByID resolves a chat entity, preferring the cache.
func (a *Adapter) ChatByID(ctx context.Context, chatID int64) (*types.Chat, error) {
	a.mu.RLock()
	cached, ok := a.chats[chatID]
	a.mu.RUnlock()
	if ok {
		return cached, nil
	}

	chat, err := a.bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, fmt.Errorf("get chat %d: %w", chatID, err)
	}
	entity := chatEntity(&chat)

	a.mu.Lock()
	a.chats[chatID] = entity
	a.mu.Unlock()
	return entity, nil
}

// UserByID resolves a user from the entity cache. The Bot API has no global
// user lookup, so a miss is ErrNotFound; a participant refresh may warm the
// cache for a later attempt.
func (a *Adapter) UserByID(_ context.Context, userID int64) (*types.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if u, ok := a.users[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %d: %w", userID, types.ErrNotFound)
}

// RefreshParticipants warms the user cache from the chat's member list. The
// cheap pass fetches administrators; the aggressive pass additionally probes
// every user id ever observed in the chat.
func (a *Adapter) RefreshParticipants(ctx context.Context, chatID int64, aggressive bool) error {
	admins, err := a.bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return fmt.Errorf("get chat administrators %d: %w", chatID, err)
	}
	a.mu.Lock()
	for _, member := range admins {
		if member.User != nil {
			a.users[member.User.ID] = userEntity(member.User)
		}
	}
	a.mu.Unlock()

	if !aggressive {
		return nil
	}

	a.mu.RLock()
	ids := make([]int64, 0, len(a.seen[chatID]))
	for id := range a.seen[chatID] {
		ids = append(ids, id)
	}
	a.mu.RUnlock()

	for _, id := range ids {
		member, err := a.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: id},
		})
		if err != nil {
			a.log.Debug("chat member probe failed", "chat_id", chatID, "user_id", id, "error", err)
			continue
		}
		if member.User != nil {
			a.mu.Lock()
			a.users[member.User.ID] = userEntity(member.User)
			a.mu.Unlock()
		}
	}
	return nil
}

// Download fetches the message's media into dir.
func (a *Adapter) Download(ctx context.Context, msg *types.IncomingMessage, dir string) error {
	if msg.Media == nil || msg.Media.FileID == "" {
		return fmt.Errorf("message %d has no downloadable media", msg.ID)
	}

	url, err := a.bot.GetFileDirectURL(msg.Media.FileID)
	if err != nil {
		return fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch media: unexpected status %s", resp.Status)
	}

	name := msg.Media.Filename
	if name == "" {
		name = path.Base(url)
	}
	dest := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write media file: %w", err)
	}
	return nil
}

func chatEntity(c *tgbotapi.Chat) *types.Chat {
	title := c.Title
	if title == "" {
		// Private chats carry a person's name instead of a title.
		title = c.FirstName
		if c.LastName != "" {
			title += " " + c.LastName
		}
	}
	return &types.Chat{
		ID:       c.ID,
		Username: c.UserName,
		Title:    title,
	}
}

func userEntity(u *tgbotapi.User) *types.User {
	return &types.User{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// mediaFrom extracts the attachment tag from the Bot API's media union.
// Only one of these is ever set per message.
func mediaFrom(m *tgbotapi.Message) *types.Media {
	switch {
	case m.Document != nil:
		return &types.Media{Kind: "Document", Filename: m.Document.FileName, FileID: m.Document.FileID}
	case len(m.Photo) > 0:
		// Largest size is last.
		return &types.Media{Kind: "Photo", FileID: m.Photo[len(m.Photo)-1].FileID}
	case m.Video != nil:
		return &types.Media{Kind: "Video", Filename: m.Video.FileName, FileID: m.Video.FileID}
	case m.Animation != nil:
		return &types.Media{Kind: "Animation", Filename: m.Animation.FileName, FileID: m.Animation.FileID}
	case m.Audio != nil:
		return &types.Media{Kind: "Audio", Filename: m.Audio.FileName, FileID: m.Audio.FileID}
	case m.Voice != nil:
		return &types.Media{Kind: "Voice", FileID: m.Voice.FileID}
	case m.VideoNote != nil:
		return &types.Media{Kind: "VideoNote", FileID: m.VideoNote.FileID}
	case m.Sticker != nil:
		return &types.Media{Kind: "Sticker", FileID: m.Sticker.FileID}
	case m.Contact != nil:
		return &types.Media{Kind: "Contact"}
	case m.Location != nil:
		return &types.Media{Kind: "Location"}
	case m.Venue != nil:
		return &types.Media{Kind: "Venue"}
	case m.Poll != nil:
		return &types.Media{Kind: "Poll"}
	case m.Dice != nil:
		return &types.Media{Kind: "Dice"}
	default:
		return nil
	}
}
