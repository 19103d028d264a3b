package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/user/chatlog/internal/metrics"
	"github.com/user/chatlog/internal/render"
	"github.com/user/chatlog/internal/resolver"
	"github.com/user/chatlog/internal/types"
)

// memStore is an in-memory HistoryStore with the same last-write-wins
// lookup semantics as the SQLite store.
type memStore struct {
	events    []*types.Event
	appendErr error
	latestErr error
}

func (m *memStore) Append(_ context.Context, event *types.Event) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) Latest(_ context.Context, chatID *int64, messageID int64) (*types.Event, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if e.MessageID != messageID {
			continue
		}
		if chatID != nil && (e.ChatID == nil || *e.ChatID != *chatID) {
			continue
		}
		return e, nil
	}
	return nil, nil
}

type fakePlatform struct {
	users     map[int64]*types.User
	downloads []int64 // message ids
}

func (f *fakePlatform) ChatByID(_ context.Context, chatID int64) (*types.Chat, error) {
	return &types.Chat{ID: chatID, Title: fmt.Sprintf("chat%d", chatID)}, nil
}

func (f *fakePlatform) UserByID(_ context.Context, userID int64) (*types.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, types.ErrNotFound
}

func (f *fakePlatform) RefreshParticipants(_ context.Context, _ int64, _ bool) error {
	return nil
}

func (f *fakePlatform) Download(_ context.Context, msg *types.IncomingMessage, _ string) error {
	f.downloads = append(f.downloads, msg.ID)
	return nil
}

type memSink struct {
	lines []string
	chats []*int64
}

func (s *memSink) Write(chatID *int64, line string) {
	s.lines = append(s.lines, line)
	s.chats = append(s.chats, chatID)
}

type fakeArchiver struct {
	archived []*types.IncomingMessage
}

func (a *fakeArchiver) Archive(_ context.Context, msg *types.IncomingMessage) {
	a.archived = append(a.archived, msg)
}

type fixture struct {
	engine   *Engine
	store    *memStore
	platform *fakePlatform
	sink     *memSink
	archiver *fakeArchiver
}

func newFixture(t *testing.T, filter *Filter, saveMedia bool) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:    &memStore{},
		platform: &fakePlatform{users: map[int64]*types.User{9: {ID: 9, Username: "alice"}}},
		sink:     &memSink{},
		archiver: &fakeArchiver{},
	}
	f.engine = New(Deps{
		Store:     f.store,
		Platform:  f.platform,
		Resolver:  resolver.New(f.platform, log),
		Renderer:  render.New(render.NewStyles(false)),
		Sink:      f.sink,
		Archiver:  f.archiver,
		Filter:    filter,
		SaveMedia: saveMedia,
		Logger:    log,
		Metrics:   metrics.New(),
	})
	return f
}

func newMsg(chatID, msgID, userID int64, text string) types.Notification {
	return types.Notification{
		Kind:       types.KindNew,
		OccurredAt: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		Message:    &types.IncomingMessage{ChatID: chatID, ID: msgID, UserID: userID, Text: text},
	}
}

func editMsg(chatID, msgID, userID int64, text string) types.Notification {
	n := newMsg(chatID, msgID, userID, text)
	n.Kind = types.KindEdited
	return n
}

func TestFilterIsTotalBarrier(t *testing.T) {
	f := newFixture(t, NewFilter(nil, []int64{5}), true)

	n := newMsg(5, 1, 9, "secret")
	n.Message.Media = &types.Media{Kind: "Photo"}
	f.engine.Process(context.Background(), n)

	if len(f.sink.lines) != 0 {
		t.Errorf("filtered chat produced log lines: %v", f.sink.lines)
	}
	if len(f.store.events) != 0 {
		t.Errorf("filtered chat produced history rows: %v", f.store.events)
	}
	if len(f.archiver.archived) != 0 {
		t.Error("filtered chat triggered media archival")
	}
}

func TestNewMessageFlow(t *testing.T) {
	f := newFixture(t, NewFilter(nil, nil), false)

	f.engine.Process(context.Background(), newMsg(42, 7, 9, "hello"))

	if len(f.sink.lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(f.sink.lines))
	}
	line := f.sink.lines[0]
	for _, want := range []string{"MSG", "[chat42 (42)]", "(7)", "<alice (9)>", "hello"} {
		if !strings.Contains(line, want) {
			t.Errorf("line missing %q: %q", want, line)
		}
	}
	if len(f.store.events) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(f.store.events))
	}
	row := f.store.events[0]
	if row.Kind != types.KindNew || *row.ChatID != 42 || row.MessageID != 7 {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.UserID == nil || *row.UserID != 9 {
		t.Errorf("row should carry resolved author: %+v", row)
	}
	if row.Text == nil || *row.Text != "hello" {
		t.Errorf("row should carry text: %+v", row)
	}
}

func TestEditedDiffAgainstPrior(t *testing.T) {
	f := newFixture(t, NewFilter(nil, nil), false)
	ctx := context.Background()

	f.engine.Process(ctx, newMsg(42, 7, 9, "hello"))
	f.engine.Process(ctx, editMsg(42, 7, 9, "world"))

	if len(f.sink.lines) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(f.sink.lines))
	}
	diff := f.sink.lines[1]
	if !strings.Contains(diff, "\n-hello") || !strings.Contains(diff, "\n+world") {
		t.Errorf("edit should diff against prior version: %q", diff)
	}
	if len(f.store.events) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(f.store.events))
	}

	// Last write wins for the next lookup.
	chat := int64(42)
	latest, err := f.store.Latest(ctx, &chat, 7)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Kind != types.KindEdited {
		t.Errorf("latest = %+v, want the edit", latest)
	}
}

func TestEditLooksUpBeforeAppend(t *testing.T) {
	f := newFixture(t, NewFilter(nil, nil), false)

	// No prior history: the edit must not read back its own row, so the
	// line is flat, not a self-diff.
	f.engine.Process(context.Background(), editMsg(42, 7, 9, "world"))

	line := f.sink.lines[0]
	if strings.Contains(line, "\n") {
		t.Errorf("edit without history should render flat: %q", line)
	}
	if len(f.store.events) != 1 {
		t.Errorf("edit should still be persisted, got %d rows", len(f.store.events))
	}
}

func TestDeletionBatchPartialHistory(t *testing.T) {
	f := newFixture(t, NewFilter(nil, nil), false)
	ctx := context.Background()

	f.engine.Process(ctx, newMsg(42, 10, 9, "doomed"))
	f.sink.lines = nil

	chat := int64(42)
	f.engine.Process(ctx, types.Notification{
		Kind:       types.KindDeleted,
		OccurredAt: time.Now(),
		ChatID:     &chat,
		DeletedIDs: []int64{10, 11},
	})

	if len(f.sink.lines) != 2 {
		t.Fatalf("expected exactly 2 lines, got %d: %v", len(f.sink.lines), f.sink.lines)
	}
	if !strings.Contains(f.sink.lines[0], "doomed") {
		t.Errorf("id 10 line should carry historical text: %q", f.sink.lines[0])
	}
	if strings.Contains(f.sink.lines[1], "doomed") || !strings.Contains(f.sink.lines[1], "(11)") {
		t.Errorf("id 11 line should be minimal: %q", f.sink.lines[1])
	}

	// Both ids get deletion rows regardless of history.
	var deletions int
	for _, e := range f.store.events {
		if e.Kind == types.KindDeleted {
			deletions++
		}
	}
	if deletions != 2 {
		t.Errorf("expected 2 deletion rows, got %d", deletions)
	}
}

func TestDeletionWildcardChatDiscovery(t *testing.T) {
	f := newFixture(t, NewFilter(nil, nil), false)
	ctx := context.Background()

	f.engine.Process(ctx, newMsg(42, 10, 9, "from chat 42"))
	f.sink.lines = nil
	f.sink.chats = nil

	// Deletion notification with no chat id: prior version found by
	// wildcard, author resolved from the prior row.
	f.engine.Process(ctx, types.Notification{
		Kind:       types.KindDeleted,
		OccurredAt: time.Now(),
		DeletedIDs: []int64{10},
	})

	if len(f.sink.lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(f.sink.lines))
	}
	line := f.sink.lines[0]
	if !strings.Contains(line, "from chat 42") {
		t.Errorf("wildcard lookup should recover prior text: %q", line)
	}
	if !strings.Contains(line, "<alice (9)>") {
		t.Errorf("author of the prior version should be resolved: %q", line)
	}
	if f.sink.chats[0] != nil {
		t.Error("unknown-chat deletion should route as unknown")
	}
}

func TestDeletionFilterAppliedPerResolvedChat(t *testing.T) {
	f := newFixture(t, NewFilter(nil, []int64{5}), false)
	ctx := context.Background()

	// Seed history directly: chat 5 is disabled, so Process would refuse.
	chatOff, chatOn := int64(5), int64(6)
	text1, text2 := "hidden", "visible"
	f.store.events = append(f.store.events,
		&types.Event{Kind: types.KindNew, ChatID: &chatOff, MessageID: 10, Text: &text1},
		&types.Event{Kind: types.KindNew, ChatID: &chatOn, MessageID: 11, Text: &text2},
	)

	f.engine.Process(ctx, types.Notification{
		Kind:       types.KindDeleted,
		OccurredAt: time.Now(),
		DeletedIDs: []int64{10, 11},
	})

	if len(f.sink.lines) != 1 {
		t.Fatalf("expected only the enabled chat's line, got %d: %v", len(f.sink.lines), f.sink.lines)
	}
	if !strings.Contains(f.sink.lines[0], "visible") {
		t.Errorf("wrong line survived the filter: %q", f.sink.lines[0])
	}
	// The filtered id must leave no record either.
	for _, e := range f.store.events {
		if e.Kind == types.KindDeleted && e.MessageID == 10 {
			t.Error("filtered deletion should not be persisted")
		}
	}
}

func TestDeletionBatchFilteredWhenChatKnown(t *testing.T) {
	f := newFixture(t, NewFilter(nil, []int64{5}), false)

	chat := int64(5)
	f.engine.Process(context.Background(), types.Notification{
		Kind:       types.KindDeleted,
		OccurredAt: time.Now(),
		ChatID:     &chat,
		DeletedIDs: []int64{1, 2, 3},
	})

	if len(f.sink.lines) != 0 || len(f.store.events) != 0 {
		t.Error("deletion in a disabled chat must have no side effects")
	}
}

func TestStoreAppendFailureStillEmitsLine(t *testing.T) {
	f := newFixture(t, NewFilter(nil, nil), false)
	f.store.appendErr = errors.New("disk full")

	f.engine.Process(context.Background(), newMsg(42, 7, 9, "hello"))

	if len(f.sink.lines) != 1 {
		t.Fatalf("output already rendered must still be emitted, got %d lines", len(f.sink.lines))
	}
}

func TestStoreLookupFailureDegradesToFlatEdit(t *testing.T) {
	f := newFixture(t, NewFilter(nil, nil), false)
	f.store.latestErr = errors.New("corrupt page")

	f.engine.Process(context.Background(), editMsg(42, 7, 9, "world"))

	if len(f.sink.lines) != 1 {
		t.Fatalf("lookup failure must not abort the event, got %d lines", len(f.sink.lines))
	}
	if strings.Contains(f.sink.lines[0], "\n") {
		t.Errorf("no prior available means flat edit line: %q", f.sink.lines[0])
	}
}

func TestMediaArchivalGating(t *testing.T) {
	n := newMsg(42, 7, 9, "")
	n.Message.Media = &types.Media{Kind: "Document", Filename: "a.txt"}

	on := newFixture(t, NewFilter(nil, nil), true)
	on.engine.Process(context.Background(), n)
	if len(on.archiver.archived) != 1 {
		t.Error("save_media on should archive")
	}

	off := newFixture(t, NewFilter(nil, nil), false)
	off.engine.Process(context.Background(), n)
	if len(off.archiver.archived) != 0 {
		t.Error("save_media off should not archive")
	}
}

func TestUnresolvedAuthorDegrades(t *testing.T) {
	f := newFixture(t, NewFilter(nil, nil), false)

	f.engine.Process(context.Background(), newMsg(42, 7, 12345, "anon"))

	line := f.sink.lines[0]
	if strings.Contains(line, "<") {
		t.Errorf("unresolved author should render without author field: %q", line)
	}
	if f.store.events[0].UserID != nil {
		t.Error("unresolved author should persist as null user_id")
	}
}
