package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultFormats = []string{".txt", ".md", ".markdown", ".csv", ".json", ".html", ".htm"}

type stubOCR struct {
	result *OCRResult
	err    error
	calls  int
}

func (s *stubOCR) Process(_ context.Context, _ []byte) (*OCRResult, error) {
	s.calls++
	return s.result, s.err
}

func TestExtractPlainText(t *testing.T) {
	e := New(1<<20, defaultFormats, nil)
	content, err := e.Extract(context.Background(), []byte("Hello, world.\nSecond line."), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world.\nSecond line.", content.Text)
	assert.Empty(t, content.Images)
	assert.Nil(t, content.Pages)
}

func TestExtractEmptyContent(t *testing.T) {
	e := New(1<<20, defaultFormats, nil)

	_, err := e.Extract(context.Background(), []byte{}, "empty.txt")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = e.Extract(context.Background(), []byte("  \n\t \r\n "), "blank.md")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestExtractStripsControlCharacters(t *testing.T) {
	e := New(1<<20, defaultFormats, nil)
	raw := "before\x00\x07\x1b after\ttab\nline\rret\x7fdel"
	content, err := e.Extract(context.Background(), []byte(raw), "dirty.txt")
	require.NoError(t, err)
	assert.Equal(t, "before after\ttab\nline\rret"+"del", content.Text)
}

func TestExtractPayloadTooLarge(t *testing.T) {
	e := New(10, defaultFormats, nil)
	_, err := e.Extract(context.Background(), []byte("this payload is larger than ten bytes"), "big.txt")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	// Size policy is checked before the type policy
	_, err = e.Extract(context.Background(), []byte("also larger than ten bytes"), "big.exe")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestExtractUnsupportedType(t *testing.T) {
	e := New(1<<20, defaultFormats, nil)
	_, err := e.Extract(context.Background(), []byte("binary"), "tool.exe")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	// OCR-only formats are unsupported when no provider is configured
	_, err = e.Extract(context.Background(), []byte("%PDF-1.7"), "scan.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestSupported(t *testing.T) {
	e := New(1<<20, defaultFormats, nil)
	assert.True(t, e.Supported("readme.MD"))
	assert.True(t, e.Supported("page.html"))
	assert.False(t, e.Supported("scan.pdf"))
	assert.False(t, e.Supported("archive.zip"))

	withOCR := New(1<<20, defaultFormats, &stubOCR{})
	assert.True(t, withOCR.Supported("scan.pdf"))
	assert.True(t, withOCR.Supported("photo.JPG"))
	assert.False(t, withOCR.Supported("archive.zip"))
}

func TestExtractOCRPages(t *testing.T) {
	ocr := &stubOCR{result: &OCRResult{
		Pages: []PageText{
			{PageNumber: 1, Text: "First page."},
			{PageNumber: 2, Text: "Second page."},
		},
		Images: []ImageCandidate{{Data: []byte{0x1}, Caption: "figure one"}},
	}}
	e := New(1<<20, defaultFormats, ocr)

	content, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, ocr.calls)
	assert.Equal(t, "First page.\n\nSecond page.", content.Text)
	assert.Len(t, content.Pages, 2)
	assert.Len(t, content.Images, 1)
}

func TestExtractOCRFailure(t *testing.T) {
	e := New(1<<20, defaultFormats, &stubOCR{err: errors.New("provider down")})
	_, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "scan.pdf")
	assert.ErrorIs(t, err, ErrOCRFailure)
}

func TestExtractOCREmptyResult(t *testing.T) {
	e := New(1<<20, defaultFormats, &stubOCR{result: &OCRResult{}})
	_, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "scan.pdf")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestExtractHTML(t *testing.T) {
	page := `<html><head><title>ignored</title><style>p{color:red}</style></head>
<body>
<h1>Title</h1>
<p>First paragraph.</p>
<script>var skipped = true;</script>
<p>Second <b>bold</b> paragraph.</p>
</body></html>`

	e := New(1<<20, defaultFormats, nil)
	content, err := e.Extract(context.Background(), []byte(page), "page.html")
	require.NoError(t, err)
	assert.Contains(t, content.Text, "Title")
	assert.Contains(t, content.Text, "First paragraph.")
	assert.Contains(t, content.Text, "Second bold paragraph.")
	assert.NotContains(t, content.Text, "ignored")
	assert.NotContains(t, content.Text, "skipped")
	assert.NotContains(t, content.Text, "color:red")
}

func TestExtractHTMLInlineImages(t *testing.T) {
	payload := []byte("fake png bytes")
	encoded := base64.StdEncoding.EncodeToString(payload)
	page := `<html><body>
<p>Intro text.</p>
<img src="data:image/png;base64,` + encoded + `" alt="architecture diagram">
<img src="https://example.com/remote.png" alt="remote">
<img src="data:image/png;base64,` + encoded + `">
</body></html>`

	e := New(1<<20, defaultFormats, nil)
	content, err := e.Extract(context.Background(), []byte(page), "doc.htm")
	require.NoError(t, err)

	// External references are skipped; captionless inline images are kept
	require.Len(t, content.Images, 2)
	assert.Equal(t, payload, content.Images[0].Data)
	assert.Equal(t, "architecture diagram", content.Images[0].Caption)
	assert.Equal(t, "", content.Images[1].Caption)
}

func TestExtractHTMLEmptyBody(t *testing.T) {
	e := New(1<<20, defaultFormats, nil)
	_, err := e.Extract(context.Background(), []byte("<html><body>   </body></html>"), "blank.html")
	assert.ErrorIs(t, err, ErrEmptyContent)
}
