package export

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"chipchip/internal/models"

	"github.com/go-pdf/fpdf"
)

const fontFamily = "Helvetica"

// WritePDF writes the session transcript as an A4 PDF
func WritePDF(w io.Writer, s models.Session) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(MarginX, PageTopY, MarginX)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(fontFamily, "", BodyFontSize)
	doc := Layout(s, func(text string, width float64) []string {
		return pdf.SplitText(latin1(text), width)
	})

	for i, page := range doc.Pages {
		pdf.AddPage()
		if i == 0 {
			pdf.SetFont(fontFamily, "B", TitleFontSize)
			pdf.Text(MarginX, TitleY, tr(latin1(doc.Title)))
			pdf.SetFont(fontFamily, "", BodyFontSize)
		}
		for _, line := range page.Lines {
			pdf.Text(MarginX, line.Y, tr(line.Text))
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// FileName returns the download name for a session transcript
func FileName(s models.Session) string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = "Chat"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	return name + ".pdf"
}

// latin1 reduces text to what the core PDF fonts can measure and draw.
// Symbols such as emoji are dropped, other characters become '?'.
func latin1(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r <= 0xFF:
			b.WriteRune(r)
		case unicode.Is(unicode.So, r), unicode.Is(unicode.Mn, r), unicode.Is(unicode.Cf, r):
		default:
			b.WriteRune('?')
		}
	}
	return strings.TrimLeft(b.String(), " ")
}
