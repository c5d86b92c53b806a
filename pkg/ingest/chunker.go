package ingest

import (
	"fmt"
	"strings"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/models"
)

// Chunker splits parsed sources into indexable chunks. Structured
// sources map one chunk per record; unstructured text accumulates
// whole paragraphs up to the target size with one paragraph of
// overlap between consecutive chunks.
type Chunker struct {
	targetTokens int
}

// NewChunker creates a Chunker from configuration.
func NewChunker(cfg config.ChunkerConfig) *Chunker {
	return &Chunker{targetTokens: cfg.TargetTokens}
}

// Chunk converts one parsed source into chunks. An empty source yields
// an empty list. ChunkIndex restarts at 0 per source.
func (c *Chunker) Chunk(src *ParsedSource) []models.Chunk {
	if src == nil || src.Empty() {
		return nil
	}
	if src.Structured {
		return c.chunkRecords(src)
	}
	return c.chunkText(src)
}

// ChunkAll chunks every source in order.
func (c *Chunker) ChunkAll(sources []*ParsedSource) []models.Chunk {
	var out []models.Chunk
	for _, src := range sources {
		out = append(out, c.Chunk(src)...)
	}
	return out
}

func (c *Chunker) chunkRecords(src *ParsedSource) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(src.Records))
	for i, rec := range src.Records {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Entry %d from %s:", i+1, src.Filename)
		for _, f := range rec.Fields {
			if f.Key == "" {
				fmt.Fprintf(&sb, "\n  %s", f.Value)
			} else {
				fmt.Fprintf(&sb, "\n  %s: %s", f.Key, f.Value)
			}
		}
		content := sb.String()
		chunks = append(chunks, models.Chunk{
			Content:    content,
			Source:     fmt.Sprintf("%s, Entry %d", src.Filename, i+1),
			ChunkIndex: i,
			TokenCount: CountTokens(content),
		})
	}
	return chunks
}

// chunkText greedily packs whole paragraphs until the target token
// count is reached. Paragraphs are never split; a paragraph larger
// than the target becomes its own chunk. Each new chunk is seeded
// with the previous chunk's last paragraph for continuity.
func (c *Chunker) chunkText(src *ParsedSource) []models.Chunk {
	paragraphs := SplitParagraphs(src.Text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []models.Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, "\n\n")
		chunks = append(chunks, models.Chunk{
			Content:    content,
			Source:     src.Filename,
			ChunkIndex: len(chunks),
			TokenCount: CountTokens(content),
		})
	}

	for _, para := range paragraphs {
		tokens := CountTokens(para)
		if currentTokens > 0 && currentTokens+tokens > c.targetTokens {
			flush()
			// Overlap: carry the last paragraph forward.
			last := current[len(current)-1]
			current = []string{last, para}
			currentTokens = CountTokens(last) + tokens
			continue
		}
		current = append(current, para)
		currentTokens += tokens
	}
	flush()
	return chunks
}

// CountTokens approximates token count as whitespace-separated words.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
