package chunk

import (
	"regexp"
	"strings"
)

// headerPattern matches ATX-style Markdown headings: #, ##, ### ... up to 6.
var headerPattern = regexp.MustCompile(`^(#{1,6})[ \t]+(.+)$`)

// chunkMarkdown is chunkPlain with section-heading awareness: a heading
// forces a chunk boundary (even below target size) and the nearest
// preceding heading is attached as metadata.section on every following
// chunk, up to the next heading. The heading line belongs to the chunk that
// starts at the boundary it creates, not the one before it.
func chunkMarkdown(text string, opts Options) []Unit {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var units []Unit
	buffer := ""
	section := ""

	flush := func() {
		if buffer == "" {
			return
		}
		var meta map[string]string
		if section != "" {
			meta = map[string]string{"section": section}
		}
		units = append(units, Unit{Text: buffer, Metadata: meta})
	}

	for _, p := range paragraphs {
		firstLine, rest, hasRest := strings.Cut(p, "\n")
		if m := headerPattern.FindStringSubmatch(firstLine); m != nil {
			prefix := lastRunes(buffer, opts.Overlap)
			flush()
			section = strings.TrimSpace(m[2])

			headingBlock := firstLine
			if hasRest {
				headingBlock = firstLine + "\n" + rest
			}
			if prefix != "" {
				buffer = prefix + "\n\n" + headingBlock
			} else {
				buffer = headingBlock
			}
			continue
		}

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

// MarkdownChunker is a Chunker that tracks section headings.
type MarkdownChunker struct{}

func (MarkdownChunker) Chunk(text string, opts Options) []Unit {
	opts.Format = FormatMarkdown
	return Chunk(text, opts)
}
