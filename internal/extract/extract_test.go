package extract

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// makePDF writes one page per entry; "" produces an empty page.
func makePDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetCompression(false)
	pdf.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		if text != "" {
			pdf.Text(72, 72, text)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestPDFExtractor_PagesInOrder(t *testing.T) {
	data := makePDF(t, "Chapter one", "", "Chapter three")

	res, err := NewPDFExtractor(nil).Extract(context.Background(), data)
	require.NoError(t, err)

	require.Equal(t, 3, res.PageCount)
	require.Len(t, res.Pages, 3)
	assert.Contains(t, res.Pages[0], "Chapter one")
	assert.Empty(t, strings.TrimSpace(res.Pages[1]), "empty page keeps its slot")
	assert.Contains(t, res.Pages[2], "Chapter three")
	assert.Equal(t, strings.Join(res.Pages, ""), res.Text)
	assert.Equal(t, methodPDFText, res.Method)
	assert.Less(t, strings.Index(res.Text, "one"), strings.Index(res.Text, "three"))
}

func TestPDFExtractor_Rejects(t *testing.T) {
	cases := map[string][]byte{
		"not a pdf": []byte("hello world"),
		"empty":     nil,
		"truncated": []byte("%PDF-1.4\n1 0 obj\n<<"),
	}
	e := NewPDFExtractor(nil)
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrExtraction))
		})
	}
}

func TestPDFExtractor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPDFExtractor(nil).Extract(ctx, makePDF(t, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeRunner struct {
	out  string
	err  error
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.args = append([]string{name}, args...)
	return []byte(f.out), []byte("stderr"), f.err
}

func TestPdftotextExtractor(t *testing.T) {
	r := &fakeRunner{out: "page one\n\f  \n\fpage three\n\f"}
	e := NewPdftotextExtractor("", nil).WithRunner(r)

	res, err := e.Extract(context.Background(), []byte("%PDF-1.4 whatever"))
	require.NoError(t, err)
	assert.Equal(t, []string{"page one\n", "", "page three\n"}, res.Pages)
	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, "page one\npage three\n", res.Text)
	assert.Equal(t, "pdftotext", r.args[0])
	assert.Equal(t, "-layout", r.args[1])
}

func TestPdftotextExtractor_Failure(t *testing.T) {
	e := NewPdftotextExtractor("", nil).WithRunner(&fakeRunner{err: errors.New("exit status 1")})
	_, err := e.Extract(context.Background(), []byte("%PDF-1.4 whatever"))
	assert.True(t, errors.Is(err, common.ErrExtraction))

	_, err = e.Extract(context.Background(), []byte("PK zip"))
	assert.True(t, errors.Is(err, common.ErrExtraction))
}

func TestSplitFormFeeds(t *testing.T) {
	assert.Equal(t, []string{}, SplitFormFeeds(""))
	assert.Equal(t, []string{"a"}, SplitFormFeeds("a"))
	assert.Equal(t, []string{"a", "b"}, SplitFormFeeds("a\fb\f"))
	assert.Equal(t, []string{"", "b"}, SplitFormFeeds(" \fb\f"))
}

func TestNew_PicksBackend(t *testing.T) {
	assert.IsType(t, &PdftotextExtractor{}, New(common.ExtractConfig{Backend: "pdftotext"}, nil))
	assert.IsType(t, &PDFExtractor{}, New(common.ExtractConfig{}, nil))
}

func TestNew_OCRWrapsBackend(t *testing.T) {
	e := New(common.ExtractConfig{Backend: "pdftotext", OCR: true}, nil)
	require.IsType(t, &OCRFallback{}, e)
	assert.IsType(t, &PdftotextExtractor{}, e.(*OCRFallback).base)
}

type staticExtractor struct{ pages []string }

func (s staticExtractor) Extract(context.Context, []byte) (Result, error) {
	pages := append([]string(nil), s.pages...)
	return Result{Pages: pages, PageCount: len(pages), Text: strings.Join(pages, ""), Method: "pdf-text"}, nil
}

// ocrRunner answers pdftoppm with success and tesseract with a per-image text.
type ocrRunner struct {
	text  map[string]string // png base name -> tesseract output
	calls [][]string
}

func (r *ocrRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if name != "tesseract" {
		return nil, nil, nil
	}
	txt, ok := r.text[filepath.Base(args[0])]
	if !ok {
		return nil, []byte("cannot read image"), errors.New("exit status 1")
	}
	return []byte(txt), nil, nil
}

func TestOCRFallback_RecoversEmptyPages(t *testing.T) {
	r := &ocrRunner{text: map[string]string{
		"p2.png": "Scanned\t\tchapter  two\r\n\n\n\nend\n",
	}}
	e := NewOCRFallback(staticExtractor{pages: []string{"one\n", "", "three\n", ""}}, OCRConfig{DPI: 150}, nil).WithRunner(r)

	res, err := e.Extract(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one\n", "Scanned chapter two\n\nend\n", "three\n", ""}, res.Pages)
	assert.Equal(t, "one\nScanned chapter two\n\nend\nthree\n", res.Text)
	assert.Equal(t, "pdf-text+ocr", res.Method)
	assert.Equal(t, []int{4}, res.EmptyPages())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 4: ocr failed")

	require.Len(t, r.calls, 4)
	assert.Equal(t, "pdftoppm", r.calls[0][0])
	assert.Equal(t, []string{"-r", "150", "-f", "2", "-l", "2"}, r.calls[0][1:7])
	assert.Equal(t, "tesseract", r.calls[1][0])
}

func TestOCRFallback_NothingToDo(t *testing.T) {
	r := &ocrRunner{}
	e := NewOCRFallback(staticExtractor{pages: []string{"a", "b"}}, OCRConfig{}, nil).WithRunner(r)
	res, err := e.Extract(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "pdf-text", res.Method)
	assert.Empty(t, r.calls)
}

func TestOCRFallback_MaxPages(t *testing.T) {
	r := &ocrRunner{text: map[string]string{"p1.png": "x", "p2.png": "y", "p3.png": "z"}}
	e := NewOCRFallback(staticExtractor{pages: []string{"", "", ""}}, OCRConfig{MaxPages: 2}, nil).WithRunner(r)
	res, err := e.Extract(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, []string{"x\n", "y\n", ""}, res.Pages)
	assert.Contains(t, res.Warnings[0], "OCR limited to the first 2")
}

func TestNormalizeOCR(t *testing.T) {
	assert.Equal(t, "", NormalizeOCR(""))
	assert.Equal(t, "a b\n\nc", NormalizeOCR("a  \t b   \r\n-----\n\n\n\nc  \n"))
}
