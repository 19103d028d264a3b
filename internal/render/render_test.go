package render

import (
	"strings"
	"testing"
	"time"

	"github.com/user/chatlog/internal/types"
)

var testTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func plain() *Renderer { return New(NewStyles(false)) }

func str(s string) *string { return &s }

func TestNewMessageLine(t *testing.T) {
	out := plain().Line(View{
		Kind:      types.KindNew,
		At:        testTime,
		Chat:      &types.Chat{ID: 42, Title: "lounge"},
		MessageID: 7,
		User:      &types.User{ID: 9, Username: "alice"},
		Text:      "hello",
	})

	want := "2026-03-14 15:09:26 MSG [lounge (42)] (7) <alice (9)> hello"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
	if strings.Count(out, "hello") != 1 {
		t.Errorf("text should appear exactly once: %q", out)
	}
	if strings.Contains(out, "\n-") || strings.Contains(out, "\n+") {
		t.Errorf("new message must have no diff markers: %q", out)
	}
}

func TestNewMessageWithoutAuthorOrText(t *testing.T) {
	out := plain().Line(View{
		Kind:      types.KindNew,
		At:        testTime,
		Chat:      &types.Chat{ID: 1, Title: "c"},
		MessageID: 2,
	})
	if strings.Contains(out, "<") {
		t.Errorf("unresolved author should render without an author field: %q", out)
	}
}

func TestNewMessageMediaTag(t *testing.T) {
	tests := []struct {
		name  string
		media *types.Media
		want  string
	}{
		{"document with filename", &types.Media{Kind: "Document", Filename: "cat.pdf"}, "[Document: cat.pdf]"},
		{"missing filename", &types.Media{Kind: "Photo"}, "[Photo]"},
		{"web preview omitted", &types.Media{Kind: "WebPage", WebPreview: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := plain().Line(View{
				Kind: types.KindNew, At: testTime,
				Chat: &types.Chat{ID: 1, Title: "c"}, MessageID: 2,
				Media: tt.media,
			})
			if tt.want == "" {
				if strings.Contains(out, "[") && strings.Contains(out, "]") && strings.Contains(out, tt.media.Kind) {
					t.Errorf("web preview should have no media tag: %q", out)
				}
				return
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("got %q, want it to contain %q", out, tt.want)
			}
		})
	}
}

func TestEditedDiffBlock(t *testing.T) {
	out := plain().Line(View{
		Kind:      types.KindEdited,
		At:        testTime,
		Chat:      &types.Chat{ID: 42, Title: "lounge"},
		MessageID: 7,
		Text:      "world",
		Prior:     &types.Event{MessageID: 7, Text: str("hello")},
	})

	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected head + 2 diff lines, got %d: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "-") || !strings.Contains(lines[1], "hello") {
		t.Errorf("removed line = %q, want - prefix with hello", lines[1])
	}
	if !strings.HasPrefix(lines[2], "+") || !strings.Contains(lines[2], "world") {
		t.Errorf("added line = %q, want + prefix with world", lines[2])
	}
}

func TestEditedPriorMediaOnly(t *testing.T) {
	out := plain().Line(View{
		Kind:      types.KindEdited,
		At:        testTime,
		Chat:      &types.Chat{ID: 42, Title: "lounge"},
		MessageID: 7,
		Text:      "caption",
		Prior:     &types.Event{MessageID: 7, MediaType: str("Photo")},
	})
	if !strings.Contains(out, "\n-[Photo]") {
		t.Errorf("prior media should appear on the removed line: %q", out)
	}
	if !strings.Contains(out, "\n+caption") {
		t.Errorf("new text should appear on the added line: %q", out)
	}
}

func TestEditedWithoutPriorIsFlat(t *testing.T) {
	out := plain().Line(View{
		Kind:      types.KindEdited,
		At:        testTime,
		Chat:      &types.Chat{ID: 42, Title: "lounge"},
		MessageID: 7,
		Text:      "world",
	})
	if strings.Contains(out, "\n") {
		t.Errorf("edit without history should be a single line: %q", out)
	}
	if !strings.Contains(out, "EDIT") || !strings.Contains(out, "world") {
		t.Errorf("flat edit line should carry tag and text: %q", out)
	}
}

func TestDeletedWithHistory(t *testing.T) {
	chat := int64(42)
	user := int64(9)
	out := plain().Line(View{
		Kind:      types.KindDeleted,
		At:        testTime,
		Chat:      &types.Chat{ID: 42, Title: "lounge"},
		MessageID: 7,
		User:      &types.User{ID: 9, FirstName: "Alice", LastName: "B"},
		Prior: &types.Event{
			ChatID: &chat, MessageID: 7, UserID: &user,
			Text: str("gone now"), MediaType: str("Document"), MediaFilename: str("a.txt"),
		},
	})
	for _, want := range []string{"DEL", "[lounge (42)]", "(7)", "<Alice B (9)>", "gone now", "[Document: a.txt]"} {
		if !strings.Contains(out, want) {
			t.Errorf("deleted line missing %q: %q", want, out)
		}
	}
}

func TestDeletedMinimalLine(t *testing.T) {
	out := plain().Line(View{
		Kind:      types.KindDeleted,
		At:        testTime,
		MessageID: 11,
	})
	want := "2026-03-14 15:09:26 DEL (11)"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestColorsProduceANSI(t *testing.T) {
	out := New(NewStyles(true)).Line(View{
		Kind: types.KindNew, At: testTime,
		Chat: &types.Chat{ID: 1, Title: "c"}, MessageID: 2, Text: "hi",
	})
	if !strings.Contains(out, "\x1b[") {
		t.Errorf("colored rendering should contain ANSI escapes: %q", out)
	}

	stripped := plain().Line(View{
		Kind: types.KindNew, At: testTime,
		Chat: &types.Chat{ID: 1, Title: "c"}, MessageID: 2, Text: "hi",
	})
	if strings.Contains(stripped, "\x1b[") {
		t.Errorf("plain rendering should contain no ANSI escapes: %q", stripped)
	}
}

func TestDisplayNames(t *testing.T) {
	u := &types.User{ID: 1, Username: "bob", FirstName: "Robert"}
	if u.DisplayName() != "bob" {
		t.Errorf("username should win: %s", u.DisplayName())
	}
	u2 := &types.User{ID: 2, FirstName: "Ada", LastName: "L"}
	if u2.DisplayName() != "Ada L" {
		t.Errorf("full name fallback: %s", u2.DisplayName())
	}
	c := &types.Chat{ID: 3, Title: "Lounge"}
	if c.DisplayName() != "Lounge" {
		t.Errorf("title fallback: %s", c.DisplayName())
	}
}
