package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveName(t *testing.T) {
	long := strings.Repeat("a", 60)
	exact := strings.Repeat("b", 50)

	tests := []struct {
		name     string
		messages []Message
		want     string
	}{
		{"no messages", nil, DefaultSessionName},
		{"empty first text", []Message{{Sender: SenderUser}}, DefaultSessionName},
		{"short", []Message{{Sender: SenderUser, Text: "Top 3 items?"}}, "Top 3 items?"},
		{"exactly fifty", []Message{{Sender: SenderUser, Text: exact}}, exact},
		{"over fifty", []Message{{Sender: SenderUser, Text: long}}, long[:50] + "..."},
		{"uses first message only", []Message{{Text: "first"}, {Text: "second"}}, "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveName(tt.messages))
		})
	}
}

func TestTruncateNameCountsRunes(t *testing.T) {
	name := strings.Repeat("é", 51)
	got := TruncateName(name)
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
}

func TestNewMessageTimestamp(t *testing.T) {
	at := time.Date(2024, 8, 1, 15, 4, 5, 0, time.UTC)
	msg := NewMessage(SenderBot, "hi", at)
	assert.Equal(t, "3:04:05 PM", msg.Timestamp)
	assert.Equal(t, SenderBot, msg.Sender)
}

func TestCloneDoesNotShareMessages(t *testing.T) {
	s := Session{ID: "a", Messages: []Message{{Text: "one"}}}
	c := s.Clone()
	c.Messages[0].Text = "changed"
	assert.Equal(t, "one", s.Messages[0].Text)
}

func TestDescriptionPreview(t *testing.T) {
	assert.Equal(t, "New conversation", Session{}.Description())

	s := Session{Messages: []Message{{Text: "line one\nline two"}}}
	assert.Equal(t, "line one line two", s.Description())

	long := Session{Messages: []Message{{Text: strings.Repeat("x", 80)}}}
	assert.Equal(t, strings.Repeat("x", 47)+"...", long.Description())
}
