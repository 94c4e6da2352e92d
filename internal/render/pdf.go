package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/llm"
)

// Style is how one block kind is drawn. Sizes are in points.
type Style struct {
	Name       string
	Font       string
	FontStyle  string
	Size       float64
	LineHeight float64
	SpaceAfter float64
}

// All sub-headings share one style on purpose; h2..h6 look the same.
var (
	StyleHeading1 = Style{Name: "Heading1", Font: "Helvetica", FontStyle: "B", Size: 18, LineHeight: 22, SpaceAfter: 6}
	StyleHeading2 = Style{Name: "Heading2", Font: "Helvetica", FontStyle: "B", Size: 14, LineHeight: 17, SpaceAfter: 6}
	StyleBody     = Style{Name: "Body", Font: "Helvetica", Size: 12, LineHeight: 14, SpaceAfter: 10}
	StyleCode     = Style{Name: "Code", Font: "Courier", Size: 10, LineHeight: 12, SpaceAfter: 2}
	StyleSpacer   = Style{Name: "Spacer", LineHeight: 12}
)

// StyleFor maps a block onto its style.
func StyleFor(b Block) Style {
	switch b.Kind {
	case BlockHeading:
		if b.Level == 1 {
			return StyleHeading1
		}
		return StyleHeading2
	case BlockBlank:
		return StyleSpacer
	default:
		if b.Verbatim {
			return StyleCode
		}
		return StyleBody
	}
}

// StyledBlock is one entry of the render plan: the parsed block, its style and
// the sanitized text actually drawn.
type StyledBlock struct {
	Block
	Style Style
	Spans []Span
}

// Plain returns the drawn text without styling.
func (b StyledBlock) Plain() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// RenderedReport is an immutable rendered document.
type RenderedReport struct {
	blocks   []StyledBlock
	data     []byte
	pages    int
	replaced int
}

// Blocks returns a copy of the render plan.
func (r *RenderedReport) Blocks() []StyledBlock {
	out := make([]StyledBlock, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// Bytes returns a copy of the PDF.
func (r *RenderedReport) Bytes() []byte {
	return bytes.Clone(r.data)
}

func (r *RenderedReport) Len() int       { return len(r.data) }
func (r *RenderedReport) PageCount() int { return r.pages }

// Replaced is how many characters were swapped for Placeholder.
func (r *RenderedReport) Replaced() int { return r.replaced }

// Renderer turns report text into a paginated PDF.
type Renderer struct {
	pageSize string
	title    string
	compress bool
	margin   float64
	footer   bool
	logger   *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithPageSize accepts the fpdf size names ("Letter", "A4", ...). Default: Letter.
func WithPageSize(size string) Option {
	return func(r *Renderer) {
		if size != "" {
			r.pageSize = size
		}
	}
}

// WithTitle sets the document title metadata.
func WithTitle(title string) Option {
	return func(r *Renderer) { r.title = title }
}

// WithCompression toggles content stream compression. Default: on.
func WithCompression(on bool) Option {
	return func(r *Renderer) { r.compress = on }
}

// WithPageNumbers toggles the "Page n" footer. Default: on.
func WithPageNumbers(on bool) Option {
	return func(r *Renderer) { r.footer = on }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		pageSize: "Letter",
		title:    "Thesis Report",
		compress: true,
		margin:   72,
		footer:   true,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render parses text into blocks and draws them. Unrepresentable characters are
// replaced, never rejected, so any string renders.
func (r *Renderer) Render(text string) (*RenderedReport, error) {
	return r.RenderBlocks(ParseBlocks(text))
}

// RenderResult renders the report and, for structured results, appends the
// scores and the to-do list as extra sections.
func (r *Renderer) RenderResult(res llm.AnalysisResult) (*RenderedReport, error) {
	return r.Render(ReportMarkdown(res))
}

// ReportMarkdown is the report text plus optional "Scores" and "To-do" sections.
func ReportMarkdown(res llm.AnalysisResult) string {
	var b strings.Builder
	b.WriteString(res.Report)
	if res.HasScores() {
		b.WriteString("\n\n## Scores\n\n")
		if res.PlagiarismScore != nil {
			b.WriteString("- Plagiarism: " + strconv.FormatFloat(*res.PlagiarismScore, 'f', -1, 64) + "%\n")
		}
		if res.ClarityScore != nil {
			fmt.Fprintf(&b, "- Clarity: %d/10\n", *res.ClarityScore)
		}
		if res.ReadabilityScore != nil {
			fmt.Fprintf(&b, "- Readability: %d/10\n", *res.ReadabilityScore)
		}
	}
	if len(res.TodoList) > 0 {
		b.WriteString("\n\n## To-do\n\n")
		for _, item := range res.TodoList {
			b.WriteString("- " + strings.ReplaceAll(item, "\n", " ") + "\n")
		}
	}
	return b.String()
}

// RenderBlocks draws an explicit block sequence. It fails with ErrRender only
// when a block is structurally invalid (unknown kind, heading level outside 1-6).
func (r *Renderer) RenderBlocks(blocks []Block) (rep *RenderedReport, err error) {
	start := time.Now()
	for i, b := range blocks {
		switch {
		case b.Kind == BlockHeading && (b.Level < 1 || b.Level > 6):
			return nil, common.NewRenderError("invalid report structure", fmt.Errorf("block %d: heading level %d", i, b.Level))
		case b.Kind != BlockHeading && b.Kind != BlockParagraph && b.Kind != BlockBlank:
			return nil, common.NewRenderError("invalid report structure", fmt.Errorf("block %d: kind %d", i, b.Kind))
		}
	}

	defer func() {
		if p := recover(); p != nil {
			rep, err = nil, common.NewRenderError("the report could not be rendered", fmt.Errorf("pdf panic: %v", p))
		}
	}()

	plan := make([]StyledBlock, 0, len(blocks))
	replaced := 0
	for _, b := range blocks {
		sb := StyledBlock{Block: b, Style: StyleFor(b)}
		var spans []Span
		switch {
		case b.Kind == BlockBlank:
		case b.Verbatim:
			spans = []Span{{Text: b.Text}}
		case b.Kind == BlockHeading:
			spans = []Span{{Text: PlainText(b.Text), Bold: true}}
		default:
			spans = ParseInline(b.Text)
		}
		for _, s := range spans {
			clean, n := Sanitize(s.Text)
			replaced += n
			s.Text = clean
			sb.Spans = append(sb.Spans, s)
		}
		plan = append(plan, sb)
	}

	pdf := fpdf.New("P", "pt", r.pageSize, "")
	pdf.SetCompression(r.compress)
	pdf.SetTitle(r.title, true)
	pdf.SetCreator("thesislens", true)
	pdf.SetMargins(r.margin, r.margin, r.margin)
	pdf.SetAutoPageBreak(true, r.margin)
	if r.footer {
		pdf.SetFooterFunc(func() {
			pdf.SetY(-r.margin / 2)
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 10, "Page "+strconv.Itoa(pdf.PageNo()), "", 0, "C", false, 0, "")
		})
	}
	pdf.AddPage()

	for _, sb := range plan {
		drawBlock(pdf, sb)
	}

	if pdf.Err() {
		return nil, common.NewRenderError("the report could not be rendered", pdf.Error())
	}
	pages := pdf.PageCount()
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, common.NewRenderError("the report could not be rendered", err)
	}

	r.logger.Info("render.pdf.ok",
		"blocks", len(plan),
		"pages", pages,
		"bytes", buf.Len(),
		"replaced_chars", replaced,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &RenderedReport{blocks: plan, data: buf.Bytes(), pages: pages, replaced: replaced}, nil
}

func drawBlock(pdf *fpdf.Fpdf, sb StyledBlock) {
	st := sb.Style
	switch sb.Kind {
	case BlockBlank:
		pdf.Ln(st.LineHeight)
	case BlockHeading:
		pdf.SetFont(st.Font, st.FontStyle, st.Size)
		pdf.MultiCell(0, st.LineHeight, toWinAnsi(sb.Plain()), "", "L", false)
		pdf.Ln(st.SpaceAfter)
	default:
		for _, s := range sb.Spans {
			pdf.SetFont(st.Font, fontStyle(st, s), st.Size)
			pdf.Write(st.LineHeight, toWinAnsi(s.Text))
		}
		pdf.Ln(st.LineHeight)
		pdf.Ln(st.SpaceAfter)
	}
}

func fontStyle(st Style, s Span) string {
	if st.Font == "Courier" {
		return ""
	}
	out := ""
	if s.Bold {
		out += "B"
	}
	if s.Italic {
		out += "I"
	}
	return out
}
