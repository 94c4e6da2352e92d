package render

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Span is a run of text with one font style.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
}

var inlineParser = goldmark.New().Parser()

// ParseInline splits a paragraph into styled spans. Strong emphasis is bold,
// emphasis is italic, code spans and links keep only their text, raw HTML is
// dropped. Adjacent spans with the same style are merged.
func ParseInline(s string) []Span {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	src := []byte(escapeBlockStart(strings.TrimSpace(s)))
	doc := inlineParser.Parse(text.NewReader(src))

	var (
		spans  []Span
		bold   int
		italic int
	)
	emit := func(t string) {
		if t == "" {
			return
		}
		st := Span{Text: t, Bold: bold > 0, Italic: italic > 0}
		if n := len(spans); n > 0 && spans[n-1].Bold == st.Bold && spans[n-1].Italic == st.Italic {
			spans[n-1].Text += t
			return
		}
		spans = append(spans, st)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Emphasis:
			d := 1
			if !entering {
				d = -1
			}
			if node.Level >= 2 {
				bold += d
			} else {
				italic += d
			}
		case *ast.Text:
			if !entering {
				return ast.WalkContinue, nil
			}
			v := node.Segment.Value(src)
			if _, inCode := node.Parent().(*ast.CodeSpan); !inCode {
				v = util.UnescapePunctuations(v)
				v = util.ResolveNumericReferences(v)
				v = util.ResolveEntityNames(v)
			}
			emit(string(v))
			if node.SoftLineBreak() || node.HardLineBreak() {
				emit(" ")
			}
		case *ast.String:
			if entering {
				emit(string(node.Value))
			}
		case *ast.AutoLink:
			if entering {
				emit(string(node.Label(src)))
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			// block boundaries inside one paragraph only show up for odd input
			if !entering && len(spans) > 0 && n.NextSibling() != nil {
				emit(" ")
			}
		}
		return ast.WalkContinue, nil
	})

	if n := len(spans); n > 0 {
		spans[n-1].Text = strings.TrimRight(spans[n-1].Text, " ")
		if spans[n-1].Text == "" {
			spans = spans[:n-1]
		}
	}
	return spans
}

var orderedStart = regexp.MustCompile(`^(\d{1,9})([.)])`)

// escapeBlockStart keeps a leading "1.", "-", "#" or ">" as text so that goldmark
// does not read the paragraph as a list, heading, rule or quote.
func escapeBlockStart(s string) string {
	switch {
	case s == "":
		return s
	case orderedStart.MatchString(s):
		return orderedStart.ReplaceAllString(s, `$1\$2`)
	case strings.ContainsRune("-+#>", rune(s[0])):
		return `\` + s
	case (s[0] == '*' || s[0] == '_') && (len(s) == 1 || s[1] == ' ' || s[1] == '\t'):
		return `\` + s
	}
	return s
}

// PlainText is ParseInline without styles.
func PlainText(s string) string {
	var b strings.Builder
	for _, sp := range ParseInline(s) {
		b.WriteString(sp.Text)
	}
	return b.String()
}
