package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/list"
	"github.com/google/uuid"
)

// Sender identifies who wrote a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

const (
	// DefaultSessionName is used for sessions that have no messages yet
	DefaultSessionName = "New Chat"

	// MaxNameLength is the rune length after which derived names are truncated
	MaxNameLength = 50

	// TimestampLayout matches the display format used by the transcript
	TimestampLayout = "3:04:05 PM"
)

// Message represents a single chat message
type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewMessage creates a message stamped with the given time
func NewMessage(sender Sender, text string, at time.Time) Message {
	return Message{
		Sender:    sender,
		Text:      text,
		Timestamp: at.Format(TimestampLayout),
	}
}

// Session represents a named chat thread with its transcript
type Session struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// NewSessionID generates a client-side session identifier
func NewSessionID() string {
	return uuid.NewString()
}

// Clone returns a copy that does not share the message slice
func (s Session) Clone() Session {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

// DeriveName computes a session name from the first message of a transcript.
func DeriveName(messages []Message) string {
	if len(messages) == 0 || messages[0].Text == "" {
		return DefaultSessionName
	}
	return TruncateName(messages[0].Text)
}

// TruncateName shortens a name to MaxNameLength runes, appending "..." when cut.
func TruncateName(name string) string {
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	return string([]rune(name)[:MaxNameLength]) + "..."
}

// FilterValue implements list.Item interface for the session list
func (s Session) FilterValue() string { return s.Name }

// Title implements list.Item interface for the session list
func (s Session) Title() string { return s.Name }

// Description implements list.Item interface for the session list
func (s Session) Description() string {
	if len(s.Messages) == 0 {
		return "New conversation"
	}
	lastMsg := s.Messages[len(s.Messages)-1]
	preview := strings.ReplaceAll(lastMsg.Text, "\n", " ")
	if utf8.RuneCountInString(preview) > 50 {
		preview = string([]rune(preview)[:47]) + "..."
	}
	return preview
}

var _ list.Item = Session{}
