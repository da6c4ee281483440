package overlay

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"proofd/internal/span"
)

// Markup builds the overlay's decorated content: the surface text with each
// error span wrapped in a tagged decoration carrying its category-derived
// color and a serialized copy of its suggestions, so later tooltip lookups
// need no analyzer round trip.
//
// Spans are spliced in descending start order; inserting a decoration before
// an earlier span would shift every not-yet-processed offset. Tag positions
// always address offsets into the plain text, so overlapping spans interleave
// rather than invert: visually the last-processed span wins, and tooltip
// resolution considers all overlapping records independently of rendering.
func Markup(text string, errs []span.ErrorRecord, flash *span.Span) string {
	rs := []rune(text)
	chunks := []chunk{{kind: chunkText, text: rs}}

	sorted := make([]span.ErrorRecord, len(errs))
	copy(sorted, errs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Span.Start > sorted[j].Span.Start
	})

	for i := range sorted {
		rng := sorted[i].Span.Clamp(len(rs))
		if rng.Len() == 0 {
			continue
		}
		chunks = insertTag(chunks, rng.End, chunk{kind: chunkClose}, true)
		chunks = insertTag(chunks, rng.Start, chunk{kind: chunkOpen, rec: &sorted[i]}, false)
	}

	if flash != nil {
		if rng := flash.Clamp(len(rs)); rng.Len() > 0 {
			chunks = insertTag(chunks, rng.End, chunk{kind: chunkClose, flash: true}, true)
			chunks = insertTag(chunks, rng.Start, chunk{kind: chunkOpen, flash: true}, false)
		}
	}

	var sb strings.Builder
	for _, c := range chunks {
		switch c.kind {
		case chunkText:
			sb.WriteString(html.EscapeString(string(c.text)))
		case chunkOpen:
			if c.flash {
				sb.WriteString(`<mark class="proofd-flash">`)
				continue
			}
			sb.WriteString(openTag(c.rec))
		case chunkClose:
			if c.flash {
				sb.WriteString(`</mark>`)
				continue
			}
			sb.WriteString(`</span>`)
		}
	}
	return sb.String()
}

type chunkKind int

const (
	chunkText chunkKind = iota
	chunkOpen
	chunkClose
)

type chunk struct {
	kind  chunkKind
	text  []rune
	rec   *span.ErrorRecord
	flash bool
}

// insertTag inserts a zero-width tag chunk at the given plain-text offset.
// eager places the tag at the earliest list position reaching the offset
// (used for closes, so they precede tags already sitting on the boundary);
// otherwise the tag lands at the latest position (used for opens, so they
// hug the text they wrap).
func insertTag(chunks []chunk, pos int, tag chunk, eager bool) []chunk {
	cum := 0
	idx := -1

	for i, c := range chunks {
		if cum == pos {
			idx = i
			if eager {
				break
			}
		}
		if c.kind != chunkText {
			continue
		}
		n := len(c.text)
		if pos > cum && pos < cum+n {
			out := make([]chunk, 0, len(chunks)+2)
			out = append(out, chunks[:i]...)
			out = append(out,
				chunk{kind: chunkText, text: c.text[:pos-cum]},
				tag,
				chunk{kind: chunkText, text: c.text[pos-cum:]},
			)
			out = append(out, chunks[i+1:]...)
			return out
		}
		cum += n
		if cum > pos {
			break
		}
	}
	if idx == -1 {
		idx = len(chunks)
	}

	out := make([]chunk, 0, len(chunks)+1)
	out = append(out, chunks[:idx]...)
	out = append(out, tag)
	out = append(out, chunks[idx:]...)
	return out
}

// openTag renders an error decoration's opening tag.
func openTag(rec *span.ErrorRecord) string {
	color := span.ColorFor(rec.Kind)
	sugs, err := json.Marshal(rec.Suggestions)
	if err != nil {
		sugs = []byte("[]")
	}
	return fmt.Sprintf(
		`<span class="proofd-error proofd-%s" data-kind="%s" data-suggestions="%s" style="text-decoration:underline wavy %s">`,
		color,
		html.EscapeString(rec.Kind),
		html.EscapeString(string(sugs)),
		color,
	)
}
