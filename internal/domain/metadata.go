package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// CommentVisibility controls who sees a comment and whether it asks the student something.
type CommentVisibility string

const (
	CommentPublic   CommentVisibility = "PUBLIC"
	CommentInternal CommentVisibility = "INTERNAL"
	CommentQuestion CommentVisibility = "QUESTION"
)

// ParseCommentVisibility normalizes the visibility; empty input means PUBLIC.
func ParseCommentVisibility(raw string) (CommentVisibility, bool) {
	v := CommentVisibility(strings.ToUpper(strings.TrimSpace(raw)))
	switch v {
	case "":
		return CommentPublic, true
	case CommentPublic, CommentInternal, CommentQuestion:
		return v, true
	default:
		return v, false
	}
}

// StudentVisible reports whether the ticket creator can see comments of this kind.
func (v CommentVisibility) StudentVisible() bool {
	return v != CommentInternal
}

// Comment is one entry of the append-only ticket conversation.
type Comment struct {
	Text       string            `json:"text"`
	AuthorID   string            `json:"author_id"`
	AuthorRole Role              `json:"author_role"`
	Visibility CommentVisibility `json:"visibility"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ThreadRefs are notification thread identifiers owned by delivery workers.
type ThreadRefs struct {
	SlackChannel   string `json:"slack_channel,omitempty"`
	SlackThreadTS  string `json:"slack_thread_ts,omitempty"`
	EmailMessageID string `json:"email_message_id,omitempty"`
}

// Metadata is the ticket's structured document. DynamicFields is never inspected here.
type Metadata struct {
	Comments      []Comment       `json:"comments,omitempty"`
	Threads       ThreadRefs      `json:"threads"`
	DynamicFields json.RawMessage `json:"dynamic_fields,omitempty"`
}

// AppendComment adds c to the end of the conversation.
func (m *Metadata) AppendComment(c Comment) {
	m.Comments = append(m.Comments, c)
}

// LastComment returns the most recent comment, if any.
func (m Metadata) LastComment() (Comment, bool) {
	if len(m.Comments) == 0 {
		return Comment{}, false
	}
	return m.Comments[len(m.Comments)-1], true
}

// VisibleComments filters out internal notes unless includeInternal is set.
func (m Metadata) VisibleComments(includeInternal bool) []Comment {
	out := make([]Comment, 0, len(m.Comments))
	for _, c := range m.Comments {
		if !includeInternal && !c.Visibility.StudentVisible() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Clone deep-copies the document.
func (m Metadata) Clone() Metadata {
	cp := Metadata{Threads: m.Threads}
	if m.Comments != nil {
		cp.Comments = append([]Comment(nil), m.Comments...)
	}
	if m.DynamicFields != nil {
		cp.DynamicFields = append(json.RawMessage(nil), m.DynamicFields...)
	}
	return cp
}
