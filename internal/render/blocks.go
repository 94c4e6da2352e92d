package render

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// BlockKind is the type of a report block.
type BlockKind int

const (
	BlockHeading BlockKind = iota + 1
	BlockParagraph
	BlockBlank
)

func (k BlockKind) String() string {
	switch k {
	case BlockHeading:
		return "HEADING"
	case BlockParagraph:
		return "PARAGRAPH"
	case BlockBlank:
		return "BLANK"
	default:
		return "UNKNOWN"
	}
}

// Block is the intermediate representation between the report text and the
// PDF. Text keeps inline markdown (emphasis, code spans, links); Level is 1-6
// for headings and 0 otherwise.
type Block struct {
	Kind  BlockKind
	Level int
	Text  string

	// Verbatim paragraphs (fenced code) skip inline markdown.
	Verbatim bool
}

var (
	atxHeading    = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+(.*?))?(?:[ \t]+#+)?[ \t]*$`)
	bulletItem    = regexp.MustCompile(`^\s*[-*+][ \t]+(.*)$`)
	orderedItem   = regexp.MustCompile(`^\s*(\d{1,9}[.)])[ \t]+(.*)$`)
	thematicBreak = regexp.MustCompile(`^ {0,3}(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	codeFence     = regexp.MustCompile("^ {0,3}(```|~~~)")
	quoteMarker   = regexp.MustCompile(`^ {0,3}>[ \t]?`)
)

const bullet = "• "

var htmlStripper = bluemonday.StrictPolicy()

// ParseBlocks converts markdown-like text into blocks. It is total: every input,
// including "", yields a (possibly empty) block sequence.
//
//   - "#".."######" lines are headings
//   - consecutive text lines form one paragraph
//   - each list item is its own paragraph, prefixed with a bullet or its number
//   - lines inside fenced code are paragraphs, one per line
//   - runs of blank lines and thematic breaks collapse into one BLANK
//
// Leading and trailing BLANKs are dropped.
func ParseBlocks(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var (
		blocks []Block
		para   []string
		inCode bool
		fence  string
	)
	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: strings.Join(para, " ")})
			para = nil
		}
	}
	blank := func() {
		flush()
		if n := len(blocks); n > 0 && blocks[n-1].Kind != BlockBlank {
			blocks = append(blocks, Block{Kind: BlockBlank})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := codeFence.FindStringSubmatch(line); m != nil {
			if !inCode {
				flush()
				inCode, fence = true, m[1]
				continue
			}
			if m[1] == fence {
				inCode = false
				continue
			}
		}
		if inCode {
			if strings.TrimSpace(line) == "" {
				blank()
			} else {
				blocks = append(blocks, Block{Kind: BlockParagraph, Text: expandTabs(line), Verbatim: true})
			}
			continue
		}

		line = stripHTML(line)
		line = quoteMarker.ReplaceAllString(line, "")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			blank()
		case thematicBreak.MatchString(line):
			blank()
		case atxHeading.MatchString(line):
			flush()
			m := atxHeading.FindStringSubmatch(line)
			blocks = append(blocks, Block{Kind: BlockHeading, Level: len(m[1]), Text: strings.TrimSpace(m[2])})
		case bulletItem.MatchString(line):
			flush()
			m := bulletItem.FindStringSubmatch(line)
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: bullet + strings.TrimSpace(m[1])})
		case orderedItem.MatchString(line):
			flush()
			m := orderedItem.FindStringSubmatch(line)
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: m[1] + " " + strings.TrimSpace(m[2])})
		default:
			para = append(para, trimmed)
		}
	}
	flush()

	for len(blocks) > 0 && blocks[len(blocks)-1].Kind == BlockBlank {
		blocks = blocks[:len(blocks)-1]
	}
	return blocks
}

var htmlTag = regexp.MustCompile(`</?([A-Za-z][A-Za-z0-9]*)\b[^<>]*>`)

// voidElements never have a closing tag.
var voidElements = map[string]bool{"br": true, "hr": true, "img": true, "wbr": true}

var pairedElements = map[string]bool{
	"a": true, "b": true, "blockquote": true, "code": true, "del": true, "div": true,
	"em": true, "font": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "i": true, "li": true, "mark": true, "ol": true, "p": true, "pre": true,
	"s": true, "script": true, "small": true, "span": true, "strong": true, "style": true,
	"sub": true, "sup": true, "table": true, "td": true, "th": true, "tr": true, "u": true,
	"ul": true,
}

// stripHTML removes tags models sometimes mix into markdown (<br>, <b>, ...).
// Only known elements count as tags, and paired ones only when both halves
// are on the line, so prose like "x<y" or "List<String>" survives intact.
func stripHTML(line string) string {
	if !strings.ContainsRune(line, '<') {
		return line
	}
	matches := htmlTag.FindAllStringSubmatchIndex(line, -1)
	opens := map[string]int{}
	closes := map[string]int{}
	for _, m := range matches {
		name := strings.ToLower(line[m[2]:m[3]])
		if line[m[0]+1] == '/' {
			closes[name]++
		} else {
			opens[name]++
		}
	}

	tagAt := map[int]bool{}
	for _, m := range matches {
		name := strings.ToLower(line[m[2]:m[3]])
		closing := line[m[0]+1] == '/'
		switch {
		case voidElements[name]:
			tagAt[m[0]] = true
		case pairedElements[name] && !closing && closes[name] > 0:
			tagAt[m[0]] = true
		case pairedElements[name] && closing && opens[name] > 0:
			tagAt[m[0]] = true
		}
	}
	if len(tagAt) == 0 {
		return line
	}

	var b strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '<' && !tagAt[i]:
			b.WriteString("&lt;")
		case line[i] == '&':
			b.WriteString("&amp;")
		default:
			b.WriteByte(line[i])
		}
	}
	return html.UnescapeString(htmlStripper.Sanitize(b.String()))
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}
