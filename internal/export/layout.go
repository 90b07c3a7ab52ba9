// Package export renders session transcripts as paginated documents.
package export

import (
	"chipchip/internal/models"
)

// Page geometry in millimetres
const (
	MarginX    = 10.0
	TitleY     = 10.0
	BodyStartY = 20.0
	PageTopY   = 10.0
	TextWidth  = 180.0
	LineHeight = 7.0
	PageHeight = 280.0

	TitleFontSize = 14.0
	BodyFontSize  = 10.0
)

// SplitFunc wraps text into lines no wider than width
type SplitFunc func(text string, width float64) []string

// Line is one line of text placed on a page
type Line struct {
	Y    float64
	Text string
}

// Page holds the body lines of one page
type Page struct {
	Lines []Line
}

// Document is a laid out transcript; Title is drawn on the first page
type Document struct {
	Title string
	Pages []Page
}

// Prefix returns the sender glyph written before a message
func Prefix(sender models.Sender) string {
	if sender == models.SenderUser {
		return "You: "
	}
	return "Bot: "
}

// Layout places every message of the session on pages. A message starts on
// a new page when its lines would run past PageHeight; a message longer than
// a whole page continues line by line on the following pages.
func Layout(s models.Session, split SplitFunc) Document {
	doc := Document{Title: s.Name, Pages: []Page{{}}}
	y := BodyStartY

	newPage := func() {
		doc.Pages = append(doc.Pages, Page{})
		y = PageTopY
	}

	for _, msg := range s.Messages {
		lines := split(Prefix(msg.Sender)+msg.Text, TextWidth)
		if len(lines) == 0 {
			continue
		}

		atTop := len(doc.Pages[len(doc.Pages)-1].Lines) == 0
		if !atTop && y+float64(len(lines))*LineHeight > PageHeight {
			newPage()
		}

		for _, text := range lines {
			if y+LineHeight > PageHeight {
				newPage()
			}
			page := &doc.Pages[len(doc.Pages)-1]
			page.Lines = append(page.Lines, Line{Y: y, Text: text})
			y += LineHeight
		}
	}

	return doc
}
