package reason

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/groundline/groundline/pkg/llm"
)

// maxContextChars caps the retrieved context embedded in the
// synthesis prompt to stay under the provider's token window.
const maxContextChars = 80000

// synthesizerApology is returned instead of raising when the provider
// fails; queries never error out of the synthesis step.
const synthesizerApology = "I apologize, but I encountered an error processing your query. Please try again."

// Synthesizer generates the answer text from query, retrieved
// context, and the agent's system prompt.
type Synthesizer struct {
	client llm.Client
	logger *slog.Logger
}

// NewSynthesizer creates a Synthesizer. The client may not be nil.
func NewSynthesizer(client llm.Client) *Synthesizer {
	if client == nil {
		panic("reason.NewSynthesizer: client is nil")
	}
	return &Synthesizer{
		client: client,
		logger: slog.With("component", "synthesizer"),
	}
}

// Generate produces the raw answer. LLM failures surface as a safe
// apology string, never as an error.
func (s *Synthesizer) Generate(ctx context.Context, query, context_, systemPrompt, multimodalContext string) string {
	if len(context_) > maxContextChars {
		context_ = context_[:maxContextChars]
	}

	multimodalSection := ""
	if multimodalContext != "" {
		multimodalSection = fmt.Sprintf(`

MULTIMODAL INPUT (User uploaded media):
%s

IMPORTANT: When the user asks about images, audio, or other uploaded media,
use the descriptions above to answer their questions. The multimodal input
contains AI-generated descriptions of what the user has uploaded.`, multimodalContext)
	}

	fullSystemPrompt := fmt.Sprintf(`%s

RETRIEVED KNOWLEDGE BASE CONTEXT:
%s
%s

IMPORTANT INSTRUCTIONS:
1. Answer using the retrieved context AND any multimodal input provided
2. If the user asks about uploaded images/audio, use the MULTIMODAL INPUT section
3. If asking about knowledge base topics, use the RETRIEVED CONTEXT
4. If information is not available in any source, say "I don't have information about that"
5. Be specific and cite sources when possible
6. Be concise but comprehensive
7. If you quote directly, use quotation marks`, systemPrompt, context_, multimodalSection)

	answer, err := s.client.Complete(ctx, llm.Request{
		Kind:        llm.KindAdvanced,
		System:      fullSystemPrompt,
		User:        query,
		Temperature: 0.3,
	})
	if err != nil {
		s.logger.Error("Answer generation failed", "error", err)
		return synthesizerApology
	}
	return answer
}
