// Package chunker splits normalized document text into bounded, overlapping
// segments, preferring paragraph and sentence boundaries.
package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultMaxChars     = 2000
	DefaultMinChars     = 100
	DefaultOverlapChars = 200

	// Rough characters-per-page used to estimate a source page when no page
	// structure is available. Best effort only.
	charsPerPage = 3000
)

// Options controls chunk sizing and boundary behavior.
type Options struct {
	MaxChars          int
	MinChars          int
	OverlapChars      int
	RespectParagraphs bool
	RespectSentences  bool
}

// DefaultOptions returns the standard chunking configuration.
func DefaultOptions() Options {
	return Options{
		MaxChars:          DefaultMaxChars,
		MinChars:          DefaultMinChars,
		OverlapChars:      DefaultOverlapChars,
		RespectParagraphs: true,
		RespectSentences:  true,
	}
}

func (o Options) normalized() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	// A ceiling below one UTF-8 rune cannot make progress when hard-splitting
	if o.MaxChars < utf8.UTFMax {
		o.MaxChars = utf8.UTFMax
	}
	if o.MinChars < 0 {
		o.MinChars = 0
	}
	if o.OverlapChars < 0 {
		o.OverlapChars = 0
	}
	if o.OverlapChars >= o.MaxChars {
		o.OverlapChars = o.MaxChars / 4
	}
	return o
}

// Chunk is one produced segment. StartPosition/EndPosition describe the
// chunk's primary span in the original text; overlap re-included from the
// previous chunk appears only in Content, never in the span.
type Chunk struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	Index         int
	TotalChunks   int
	Content       string
	StartPosition int
	EndPosition   int
	EstimatedPage int
	WordCount     int
	CharCount     int
}

// Page is one page of a structured document.
type Page struct {
	PageNumber int
	Text       string
}

type span struct {
	start int
	end   int
	page  int // 0 when unknown
}

// Split chunks plain text. Empty or whitespace-only text yields no chunks.
func Split(text string, documentID uuid.UUID, opts Options) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	opts = opts.normalized()

	units := splitUnits(text, opts)
	spans := accumulate(units, opts)
	return assemble(text, documentID, spans, opts, false)
}

// SplitPages chunks page-structured text. Pages are merged forward until
// MaxChars is reached; each chunk's EstimatedPage comes from the first page
// that contributed to it. Offsets refer to the pages joined with "\n\n".
func SplitPages(pages []Page, documentID uuid.UUID, opts Options) ([]Chunk, string) {
	opts = opts.normalized()

	var sb strings.Builder
	var units []span
	for i, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		start := sb.Len()
		sb.WriteString(p.Text)
		pageNum := p.PageNumber
		if pageNum <= 0 {
			pageNum = i + 1
		}
		units = append(units, span{start: start, end: sb.Len(), page: pageNum})
	}
	text := sb.String()
	if len(units) == 0 {
		return nil, text
	}

	// Join separators belong to the preceding page's span so the spans tile
	// the joined text
	for i := 0; i < len(units)-1; i++ {
		units[i].end = units[i+1].start
	}

	// Pages larger than MaxChars are split internally on text boundaries
	var refined []span
	for _, u := range units {
		if u.end-u.start <= opts.MaxChars {
			refined = append(refined, u)
			continue
		}
		sub := splitUnits(text[u.start:u.end], opts)
		sub = accumulate(sub, opts)
		for _, s := range sub {
			refined = append(refined, span{start: u.start + s.start, end: u.start + s.end, page: u.page})
		}
	}

	spans := accumulate(refined, opts)
	return assemble(text, documentID, spans, opts, true), text
}

// splitUnits tiles [0, len(text)) with paragraph/sentence units. Oversized
// units are hard-split so a single unit never exceeds MaxChars.
func splitUnits(text string, opts Options) []span {
	boundaries := map[int]bool{0: true, len(text): true}

	if opts.RespectParagraphs {
		for i := 0; i+1 < len(text); i++ {
			if text[i] == '\n' && text[i+1] == '\n' {
				j := i + 1
				for j < len(text) && text[j] == '\n' {
					j++
				}
				boundaries[j] = true
				i = j - 1
			}
		}
	}
	if opts.RespectSentences {
		for i := 0; i < len(text); i++ {
			if !isSentenceEnd(text[i]) {
				continue
			}
			j := i + 1
			for j < len(text) && isSentenceEnd(text[j]) {
				j++
			}
			if j < len(text) && isSpace(text[j]) {
				boundaries[j+1] = true
			}
			i = j - 1
		}
	}

	points := sortedKeys(boundaries)
	var units []span
	for i := 0; i < len(points)-1; i++ {
		start, end := points[i], points[i+1]
		for end-start > opts.MaxChars {
			cut := safeCut(text, start+opts.MaxChars)
			units = append(units, span{start: start, end: cut})
			start = cut
		}
		if end > start {
			units = append(units, span{start: start, end: end})
		}
	}
	return units
}

// accumulate greedily merges consecutive units until adding the next would
// exceed MaxChars, carrying page attribution from the first unit.
func accumulate(units []span, opts Options) []span {
	var out []span
	for i := 0; i < len(units); {
		cur := units[i]
		i++
		for i < len(units) && units[i].end-cur.start <= opts.MaxChars {
			cur.end = units[i].end
			i++
		}
		out = append(out, cur)
	}

	// A trailing fragment below MinChars folds into the preceding chunk
	if n := len(out); n > 1 && out[n-1].end-out[n-1].start < opts.MinChars {
		out[n-2].end = out[n-1].end
		out = out[:n-1]
	}
	return out
}

func assemble(text string, documentID uuid.UUID, spans []span, opts Options, paged bool) []Chunk {
	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		content := text[sp.start:sp.end]
		if i > 0 && opts.OverlapChars > 0 {
			content = overlapTail(text[spans[i-1].start:spans[i-1].end], opts) + content
		}

		page := sp.page
		if !paged || page <= 0 {
			page = sp.start/charsPerPage + 1
		}

		chunks = append(chunks, Chunk{
			ID:            uuid.New(),
			DocumentID:    documentID,
			Index:         i,
			TotalChunks:   len(spans),
			Content:       content,
			StartPosition: sp.start,
			EndPosition:   sp.end,
			EstimatedPage: page,
			WordCount:     len(strings.Fields(content)),
			CharCount:     len(content),
		})
	}
	return chunks
}

// overlapTail returns the trailing OverlapChars of the previous chunk,
// boundary-snapped forward to the nearest sentence or paragraph break.
func overlapTail(prev string, opts Options) string {
	if len(prev) <= opts.OverlapChars {
		return prev
	}
	tail := prev[safeCut(prev, len(prev)-opts.OverlapChars):]

	if opts.RespectParagraphs {
		if idx := strings.Index(tail, "\n\n"); idx >= 0 {
			snapped := strings.TrimLeft(tail[idx:], "\n")
			if snapped != "" {
				return snapped
			}
		}
	}
	if opts.RespectSentences {
		for i := 0; i < len(tail)-1; i++ {
			if isSentenceEnd(tail[i]) && isSpace(tail[i+1]) {
				snapped := strings.TrimLeft(tail[i+1:], " \t\n")
				if snapped != "" {
					return snapped
				}
			}
		}
	}
	return tail
}

// safeCut moves a byte index left until it does not split a UTF-8 sequence.
func safeCut(text string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(text) {
		return len(text)
	}
	for i > 0 && text[i]&0xC0 == 0x80 {
		i--
	}
	return i
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
