// Package chunker splits converted markdown into size-bounded pieces
// suitable for embedding, classifying each piece's element type.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"vectoringest/internal/hasher"
)

// ElementClass classifies the structural nature of a chunk's text.
type ElementClass string

const (
	ElementTable ElementClass = "Table"
	ElementImage ElementClass = "Image"
	ElementList  ElementClass = "List"
	ElementText  ElementClass = "Text"
)

// Chunk is one produced piece of a document's markdown body.
type Chunk struct {
	Sequence int
	Text     string
	Class    ElementClass
	Digest   string
}

// Counter measures the size of a string in whatever unit the chunker
// targets (tokens, by default). It must be deterministic: the same
// input always yields the same count.
type Counter interface {
	Count(s string) int
}

// WhitespaceCounter counts whitespace-delimited words as a stand-in
// token counter. It is the default when no model-specific tokenizer is
// supplied.
type WhitespaceCounter struct{}

// Count returns the number of whitespace-separated fields in s.
func (WhitespaceCounter) Count(s string) int {
	return len(strings.Fields(s))
}

// Config bounds the chunker's output.
type Config struct {
	SizeTokens    int
	OverlapTokens int
}

var (
	tableRe        = regexp.MustCompile(`\|\s*-{2,}\s*\|`)
	imageRe        = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	listRe         = regexp.MustCompile(`^(\s*([-*+]\s+|\d+\.\s+))`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n+`)
)

// boundary levels, in splitting preference order: paragraph, line,
// whitespace. Each level's splitter is tried on any unit from the level
// above that still exceeds the size bound. Character splitting is not
// in this chain: it is a last resort applied only to an individual
// piece that is still oversized after whitespace splitting (e.g. one
// very long word inside otherwise normal text), never to a whole text
// that has no boundary of any kind — that text is an oversized atomic
// unit and is emitted whole instead.
var boundaryLevels = []func(string) []string{
	splitParagraphs,
	splitLines,
	splitWhitespace,
}

// charLevel tags units produced by the character-splitting fallback,
// distinct from the indices into boundaryLevels.
const charLevel = -1

// unit is one piece produced by boundarySplit, tagged with the boundary
// level it came from so groupUnits can rejoin it with the separator
// that level's splitter consumed.
type unit struct {
	text  string
	level int
}

// joinerForLevel returns the separator to reinsert between two units
// that were split apart at level, so merging them back approximates the
// original text. Character-level fragments (charLevel) get no
// separator: they were never delimited by anything to begin with.
func joinerForLevel(level int) string {
	switch level {
	case 0:
		return "\n\n"
	case 1:
		return "\n"
	case 2:
		return " "
	default:
		return ""
	}
}

// Split divides markdown text into ordered, classified chunks per the
// configured size bound, using counter to measure chunk size. An empty
// or whitespace-only input yields a nil result.
func Split(text string, cfg Config, counter Counter) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if counter == nil {
		counter = WhitespaceCounter{}
	}
	size := cfg.SizeTokens
	if size <= 0 {
		size = 500
	}
	overlap := cfg.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}

	units := boundarySplit(text, size, counter, 0)
	bodies := groupUnits(units, size, overlap, counter)

	chunks := make([]Chunk, 0, len(bodies))
	for i, body := range bodies {
		chunks = append(chunks, Chunk{
			Sequence: i + 1,
			Text:     body,
			Class:    classify(body),
			Digest:   hasher.Digest(body),
		})
	}
	return chunks
}

// boundarySplit breaks text into atomic units no larger than size,
// descending through boundaryLevels starting at level. Text with no
// boundary at any level (no blank line, no line break, no whitespace) is
// an indivisible run and is returned whole, per the oversized-atomic-unit
// rule: it is the caller's job (groupUnits) to emit it as its own chunk
// rather than force a split that doesn't exist in the source text.
func boundarySplit(text string, size int, counter Counter, level int) []unit {
	if level >= len(boundaryLevels) {
		return []unit{{text: text, level: charLevel}}
	}
	parts := boundaryLevels[level](text)
	if len(parts) <= 1 {
		return boundarySplit(text, size, counter, level+1)
	}

	var out []unit
	for _, p := range parts {
		if p == "" {
			continue
		}
		if counter.Count(p) <= size {
			out = append(out, unit{text: p, level: level})
			continue
		}
		out = append(out, splitOversizedPart(p, size, counter, level)...)
	}
	return out
}

// splitOversizedPart further divides a single part that remains over size
// after being separated out at level. Below the whitespace level it hands p
// to boundarySplit at the next level, so a part with no finer boundary (a
// paragraph or line that is one long word) comes back whole. Only a part
// produced by whitespace splitting itself (e.g. one very long word amid
// ordinary text) is chopped into characters, so groupUnits can repack it
// instead of emitting it whole.
func splitOversizedPart(p string, size int, counter Counter, level int) []unit {
	if level+1 < len(boundaryLevels) {
		return boundarySplit(p, size, counter, level+1)
	}
	chars := splitCharacters(p)
	out := make([]unit, 0, len(chars))
	for _, c := range chars {
		out = append(out, unit{text: c, level: charLevel})
	}
	return out
}

// groupUnits packs already size-bounded units into chunks up to size,
// rejoining each pair with the separator appropriate to the level it was
// split at, and carrying an overlap tail forward from the end of the
// previous chunk. A unit that is itself still oversized (a charLevel unit
// holding a whole input, paragraph or line with no finer boundary) is
// emitted as its own chunk.
func groupUnits(units []unit, size, overlap int, counter Counter) []string {
	if len(units) == 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	curLevel := 0

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, u := range units {
		text := strings.TrimSpace(u.text)
		if text == "" {
			continue
		}
		if counter.Count(u.text) > size {
			flush()
			cur.Reset()
			log.Warn().Int("size_units", counter.Count(u.text)).Int("limit", size).
				Msg("chunk exceeds configured size bound; emitting as a single chunk")
			chunks = append(chunks, u.text)
			continue
		}

		joiner := joinerForLevel(u.level)
		candidate := u.text
		if cur.Len() > 0 {
			candidate = cur.String() + joiner + u.text
		}
		if cur.Len() == 0 || counter.Count(candidate) <= size {
			if cur.Len() > 0 {
				cur.WriteString(joiner)
			}
			cur.WriteString(u.text)
			curLevel = u.level
			continue
		}

		prev := cur.String()
		flush()
		cur.Reset()
		if overlap > 0 {
			if tail := overlapTail(prev, overlap, counter); tail != "" {
				cur.WriteString(tail)
				cur.WriteString(joinerForLevel(curLevel))
			}
		}
		cur.WriteString(u.text)
		curLevel = u.level
	}
	flush()
	return chunks
}

func classify(text string) ElementClass {
	switch {
	case tableRe.MatchString(text):
		return ElementTable
	case imageRe.MatchString(text):
		return ElementImage
	case listRe.MatchString(text):
		return ElementList
	default:
		return ElementText
	}
}

func splitParagraphs(text string) []string {
	raw := paragraphSplit.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func splitWhitespace(text string) []string {
	return strings.Fields(text)
}

func splitCharacters(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// overlapTail returns the trailing portion of chunk worth at most `want`
// counter units, for carrying forward as context into the next chunk.
// It only ever cuts on whole runes.
func overlapTail(chunk string, want int, counter Counter) string {
	if want <= 0 || chunk == "" {
		return ""
	}
	runes := []rune(chunk)
	for lo := 0; lo < len(runes); lo++ {
		tail := string(runes[lo:])
		if counter.Count(tail) <= want {
			return tail
		}
	}
	return ""
}
