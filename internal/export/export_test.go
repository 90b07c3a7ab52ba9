package export

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"chipchip/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitEvery wraps text every n runes
func splitEvery(n int) SplitFunc {
	return func(text string, _ float64) []string {
		runes := []rune(text)
		var lines []string
		for len(runes) > n {
			lines = append(lines, string(runes[:n]))
			runes = runes[n:]
		}
		return append(lines, string(runes))
	}
}

func sessionWith(n int, text string) models.Session {
	s := models.Session{ID: "s", Name: "Weekly report"}
	for i := 0; i < n; i++ {
		sender := models.SenderUser
		if i%2 == 1 {
			sender = models.SenderBot
		}
		s.Messages = append(s.Messages, models.Message{Sender: sender, Text: text})
	}
	return s
}

func TestLayoutPrefixesAndPositions(t *testing.T) {
	s := models.Session{Name: "Top 3 items?", Messages: []models.Message{
		{Sender: models.SenderUser, Text: "Top 3 items?"},
		{Sender: models.SenderBot, Text: "Tomato, Banana, Apple"},
	}}

	doc := Layout(s, splitEvery(1000))
	assert.Equal(t, "Top 3 items?", doc.Title)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, []Line{
		{Y: 20, Text: "You: Top 3 items?"},
		{Y: 27, Text: "Bot: Tomato, Banana, Apple"},
	}, doc.Pages[0].Lines)
}

func TestLayoutPageBreak(t *testing.T) {
	// one line each: y = 20 + 7k fits while y + 7 <= 280, so 37 lines on page one
	doc := Layout(sessionWith(40, "x"), splitEvery(1000))
	require.Len(t, doc.Pages, 2)
	assert.Len(t, doc.Pages[0].Lines, 37)
	assert.Equal(t, PageTopY, doc.Pages[1].Lines[0].Y)
	assert.Len(t, doc.Pages[1].Lines, 3)
}

func TestLayoutKeepsMessageTogether(t *testing.T) {
	// 35 one line messages leave y at 265 on page one
	s := sessionWith(35, "x")
	s.Messages = append(s.Messages, models.Message{Sender: models.SenderBot, Text: strings.Repeat("b", 15)})

	// "Bot: " + 15 runes wraps into 3 lines of at most 7: 265 + 21 > 280, so the
	// message moves to a new page whole
	doc := Layout(s, splitEvery(7))
	require.Len(t, doc.Pages, 2)
	assert.Len(t, doc.Pages[0].Lines, 35)
	last := doc.Pages[1].Lines
	require.Len(t, last, 3)
	assert.Equal(t, []float64{10, 17, 24}, []float64{last[0].Y, last[1].Y, last[2].Y})
}

func TestLayoutLongMessageFlows(t *testing.T) {
	doc := Layout(sessionWith(1, strings.Repeat("z", 100)), splitEvery(1))
	// 105 lines: 37 on page one, 38 on page two (10..269), the rest on page three
	require.Len(t, doc.Pages, 3)
	assert.Len(t, doc.Pages[0].Lines, 37)
	assert.Len(t, doc.Pages[1].Lines, 38)
	assert.Len(t, doc.Pages[2].Lines, 30)
	for _, p := range doc.Pages {
		for _, l := range p.Lines {
			assert.LessOrEqual(t, l.Y+LineHeight, PageHeight)
		}
	}
}

func TestLayoutEmptySession(t *testing.T) {
	doc := Layout(models.Session{Name: "empty"}, splitEvery(10))
	require.Len(t, doc.Pages, 1)
	assert.Empty(t, doc.Pages[0].Lines)
}

func TestWritePDF(t *testing.T) {
	s := sessionWith(60, "Which fresh produce items had the highest sales volume in August? ⚠️ Café")
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, s))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, bytes.Count(buf.Bytes(), []byte("/Type /Page\n")), 1)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Top 3 items?", "Top 3 items_.pdf"},
		{"", "Chat.pdf"},
		{"   ", "Chat.pdf"},
		{"a/b\\c", "a_b_c.pdf"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.name), func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(models.Session{Name: tt.name}))
		})
	}
}

func TestLatin1(t *testing.T) {
	assert.Equal(t, "Sorry, something went wrong.", latin1("⚠️ Sorry, something went wrong."))
	assert.Equal(t, "Café", latin1("Café"))
	assert.Equal(t, "?", latin1("中"))
}
