package reason

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/groundline/groundline/pkg/embedding"
	"github.com/groundline/groundline/pkg/index"
	"github.com/groundline/groundline/pkg/models"
)

// minAttributableWords: shorter sentences are transitions or filler
// and stay uncited.
const minAttributableWords = 4

// previewChars is how much chunk content a source entry carries.
const previewChars = 150

// Attributor maps answer sentences back to the chunks that support
// them and inserts dense [N] citations.
type Attributor struct {
	embedder embedding.Provider
}

// NewAttributor creates an Attributor. The provider may not be nil.
func NewAttributor(embedder embedding.Provider) *Attributor {
	if embedder == nil {
		panic("reason.NewAttributor: embedder is nil")
	}
	return &Attributor{embedder: embedder}
}

// citationMarker matches the " [N]" markers Attribute inserts.
var citationMarker = regexp.MustCompile(`\s\[\d+\]`)

// Attribute cites each substantive sentence with its best-matching
// chunk. Citation numbers are dense (1..K) in order of first chunk
// appearance. Existing markers are stripped first, so re-running on
// already-cited text reproduces it unchanged.
func (a *Attributor) Attribute(ctx context.Context, answer string, chunks []models.ScoredChunk) (models.AttributedAnswer, error) {
	answer = citationMarker.ReplaceAllString(answer, "")
	result := models.AttributedAnswer{AnswerWithCitations: answer}
	if len(chunks) == 0 || strings.TrimSpace(answer) == "" {
		return result, nil
	}

	sentences := SplitSentences(answer)
	var eligible []string
	for _, s := range sentences {
		if len(strings.Fields(s)) >= minAttributableWords {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return result, nil
	}

	chunkTexts := make([]string, len(chunks))
	for i, c := range chunks {
		chunkTexts[i] = c.Content
	}
	chunkVecs, err := a.embedder.Embed(ctx, chunkTexts)
	if err != nil {
		return result, fmt.Errorf("embedding chunks for attribution: %w", err)
	}
	sentenceVecs, err := a.embedder.Embed(ctx, eligible)
	if err != nil {
		return result, fmt.Errorf("embedding sentences for attribution: %w", err)
	}

	// Citation numbers follow first chunk appearance.
	citationByChunk := make(map[int]int)
	var sources []models.AttributedSource
	text := answer

	for si, sentence := range eligible {
		best, bestSim := -1, -1.0
		for ci := range chunks {
			sim := index.Cosine(sentenceVecs[si], chunkVecs[ci])
			if sim > bestSim {
				best, bestSim = ci, sim
			}
		}
		if best < 0 {
			continue
		}

		// The first sentence attributing a chunk fixes its citation
		// number and recorded similarity.
		citation, seen := citationByChunk[best]
		if !seen {
			citation = len(citationByChunk) + 1
			citationByChunk[best] = citation
			sources = append(sources, models.AttributedSource{
				Citation:   citation,
				ChunkID:    chunks[best].ID,
				Source:     chunks[best].Source,
				Preview:    truncateChars(chunks[best].Content, previewChars),
				Similarity: round3(bestSim),
			})
		}

		text = insertCitation(text, sentence, citation)
	}

	result.AnswerWithCitations = text
	result.Sources = sources
	return result, nil
}

// insertCitation appends " [n]" after the first occurrence of the
// sentence, unless that occurrence already carries the marker.
func insertCitation(text, sentence string, n int) string {
	idx := strings.Index(text, sentence)
	if idx < 0 {
		return text
	}
	marker := fmt.Sprintf(" [%d]", n)
	after := text[idx+len(sentence):]
	if strings.HasPrefix(after, marker) {
		return text
	}
	return text[:idx+len(sentence)] + marker + after
}

// SplitSentences splits on '.', '!', or '?' followed by whitespace
// (or end of text); the terminator stays with its sentence.
func SplitSentences(text string) []string {
	var out []string
	var sb strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			atEnd := i == len(runes)-1
			if atEnd || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(sb.String()); s != "" {
					out = append(out, s)
				}
				sb.Reset()
			}
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func truncateChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
