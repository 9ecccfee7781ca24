package chunk

import (
	"regexp"
	"strings"
)

var blankLineSplit = regexp.MustCompile(`\r?\n[ \t]*\r?\n+`)

// splitParagraphs splits text on blank lines, trimming and dropping empty
// paragraphs.
func splitParagraphs(text string) []string {
	raw := blankLineSplit.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.Trim(p, "\r\n")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// lastRunes returns the last n runes of s (or all of s if it has fewer).
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// runeLen returns the character length of s, measured in runes (spec's
// "characters", not bytes or tokens).
func runeLen(s string) int {
	return len([]rune(s))
}

// Chunk splits text according to opts.Format, applying package defaults for
// any unset option.
func Chunk(text string, opts Options) []Unit {
	opts = opts.WithDefaults()
	switch opts.Format {
	case FormatMarkdown:
		return chunkMarkdown(text, opts)
	default:
		return chunkPlain(text, opts)
	}
}

// chunkPlain accumulates blank-line-separated paragraphs into chunks no
// larger than opts.Target characters, carrying the last opts.Overlap
// characters of each emitted chunk forward as the next chunk's prefix.
func chunkPlain(text string, opts Options) []Unit {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var units []Unit
	buffer := ""

	flush := func() {
		if buffer != "" {
			units = append(units, Unit{Text: buffer})
		}
	}

	for _, p := range paragraphs {
		if buffer == "" {
			buffer = p
			continue
		}
		candidate := buffer + "\n\n" + p
		if runeLen(candidate) > opts.Target {
			prefix := lastRunes(buffer, opts.Overlap)
			flush()
			if prefix != "" {
				buffer = prefix + "\n\n" + p
			} else {
				buffer = p
			}
			continue
		}
		buffer = candidate
	}
	flush()

	return units
}

// PlainChunker is a Chunker that ignores Markdown structure.
type PlainChunker struct{}

func (PlainChunker) Chunk(text string, opts Options) []Unit {
	opts.Format = FormatPlain
	return Chunk(text, opts)
}
