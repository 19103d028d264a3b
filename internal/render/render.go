// Package render turns observed events into display lines. It performs no
// I/O and touches no shared state; everything it needs arrives in the View.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/chatlog/internal/types"
)

// View is the fully resolved input for one rendered line. Chat and User are
// nil when unresolved; Prior is nil when the message has no history.
type View struct {
	Kind      types.EventKind
	At        time.Time
	Chat      *types.Chat
	MessageID int64
	User      *types.User
	Text      string
	Media     *types.Media
	Prior     *types.Event
}

// Renderer formats Views using a fixed style set.
type Renderer struct {
	styles Styles
}

// New creates a Renderer with the given styles.
func New(styles Styles) *Renderer {
	return &Renderer{styles: styles}
}

// Line renders one event. Edits with a recoverable prior version become a
// two-line diff block; everything else is a single line.
func (r *Renderer) Line(v View) string {
	switch v.Kind {
	case types.KindEdited:
		return r.edited(v)
	case types.KindDeleted:
		return r.deleted(v)
	default:
		return r.newMessage(v)
	}
}

func (r *Renderer) newMessage(v View) string {
	var b strings.Builder
	r.head(&b, v, r.styles.NewTag.Render("MSG"))
	if v.Text != "" {
		b.WriteString(" " + v.Text)
	}
	if tag, ok := mediaTag(v.Media); ok {
		b.WriteString(" " + r.styles.Media.Render(tag))
	}
	return b.String()
}

func (r *Renderer) edited(v View) string {
	var b strings.Builder
	r.head(&b, v, r.styles.EditTag.Render("EDIT"))

	priorText, priorMedia := priorContent(v.Prior)
	if priorText == "" && priorMedia == "" {
		// Nothing to diff against: flat line, tagged as an edit.
		if v.Text != "" {
			b.WriteString(" " + r.styles.Added.Render(v.Text))
		}
		if tag, ok := mediaTag(v.Media); ok {
			b.WriteString(" " + r.styles.Media.Render(tag))
		}
		return b.String()
	}

	b.WriteString("\n-")
	if priorText != "" {
		b.WriteString(r.styles.Removed.Render(priorText))
	}
	if priorMedia != "" {
		if priorText != "" {
			b.WriteString(" ")
		}
		b.WriteString(r.styles.Media.Render(priorMedia))
	}

	b.WriteString("\n+")
	if v.Text != "" {
		b.WriteString(r.styles.Added.Render(v.Text))
	}
	if tag, ok := mediaTag(v.Media); ok {
		if v.Text != "" {
			b.WriteString(" ")
		}
		b.WriteString(r.styles.Media.Render(tag))
	}
	return b.String()
}

func (r *Renderer) deleted(v View) string {
	var b strings.Builder
	r.head(&b, v, r.styles.DeleteTag.Render("DEL"))

	priorText, priorMedia := priorContent(v.Prior)
	if priorText != "" {
		b.WriteString(" " + r.styles.Removed.Render(priorText))
	}
	if priorMedia != "" {
		b.WriteString(" " + r.styles.Media.Render(priorMedia))
	}
	return b.String()
}

// head writes the shared line prefix: timestamp, kind tag, chat (if known),
// message id and author (if resolved).
func (r *Renderer) head(b *strings.Builder, v View, tag string) {
	b.WriteString(r.styles.Timestamp.Render(v.At.Format("2006-01-02 15:04:05")))
	b.WriteString(" " + tag)
	if v.Chat != nil {
		b.WriteString(" " + r.styles.Chat.Render(fmt.Sprintf("[%s (%d)]", v.Chat.DisplayName(), v.Chat.ID)))
	}
	b.WriteString(" " + r.styles.MessageID.Render(fmt.Sprintf("(%d)", v.MessageID)))
	if v.User != nil {
		b.WriteString(" " + r.styles.Author.Render(fmt.Sprintf("<%s (%d)>", v.User.DisplayName(), v.User.ID)))
	}
}

// mediaTag formats an attachment tag. Web page previews are not treated as
// media; a missing filename degrades to the bare kind.
func mediaTag(m *types.Media) (string, bool) {
	if m == nil || m.WebPreview || m.Kind == "" {
		return "", false
	}
	if m.Filename != "" {
		return fmt.Sprintf("[%s: %s]", m.Kind, m.Filename), true
	}
	return fmt.Sprintf("[%s]", m.Kind), true
}

// priorContent extracts the displayable text and media tag from a prior
// history row.
func priorContent(prior *types.Event) (text, media string) {
	if prior == nil {
		return "", ""
	}
	if prior.Text != nil {
		text = *prior.Text
	}
	if prior.HasMedia() {
		m := &types.Media{Kind: *prior.MediaType}
		if prior.MediaFilename != nil {
			m.Filename = *prior.MediaFilename
		}
		media, _ = mediaTag(m)
	}
	return text, media
}
