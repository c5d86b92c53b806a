package reason

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/embedding"
	"github.com/groundline/groundline/pkg/index"
	"github.com/groundline/groundline/pkg/models"
)

// agentCacheSize bounds the in-process agent snapshot cache.
const agentCacheSize = 256

// ErrEmbeddingModelMismatch is returned when an agent was compiled
// with a different embedding model than the one now configured.
// Stored vectors are incomparable across models; the agent must be
// recompiled.
var ErrEmbeddingModelMismatch = errors.New("agent was compiled with a different embedding model; recompile required")

// NotReadyError is returned when a query hits an agent that has not
// finished compiling.
type NotReadyError struct {
	Name   string
	Status string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("agent %q is not ready (status: %s)", e.Name, e.Status)
}

// AgentLoader resolves agent snapshots by tenant-scoped name.
type AgentLoader interface {
	GetAgent(ctx context.Context, tenantID, name string) (*models.Agent, error)
}

// Engine orchestrates the per-query pipeline.
type Engine struct {
	loader    AgentLoader
	idx       index.Index
	embedder  embedding.Provider
	guardrail *Guardrail
	reranker  *Reranker
	synth     *Synthesizer
	attrib    *Attributor
	faith     *FaithfulnessScorer
	conf      *ConfidenceCalculator
	retrieval config.RetrievalConfig
	cache     *lru.Cache[string, *models.Agent]
	logger    *slog.Logger
}

// EngineDeps bundles the engine's collaborators.
type EngineDeps struct {
	Loader    AgentLoader
	Index     index.Index
	Embedder  embedding.Provider
	Guardrail *Guardrail
	Reranker  *Reranker
	Synth     *Synthesizer
	Attrib    *Attributor
	Faith     *FaithfulnessScorer
	Conf      *ConfidenceCalculator
	Retrieval config.RetrievalConfig
}

// NewEngine wires the reasoning pipeline. All dependencies are
// required.
func NewEngine(deps EngineDeps) *Engine {
	for name, dep := range map[string]any{
		"loader": deps.Loader, "index": deps.Index, "embedder": deps.Embedder,
		"guardrail": deps.Guardrail, "reranker": deps.Reranker, "synth": deps.Synth,
		"attrib": deps.Attrib, "faith": deps.Faith, "conf": deps.Conf,
	} {
		if dep == nil {
			panic("reason.NewEngine: missing dependency " + name)
		}
	}
	cache, _ := lru.New[string, *models.Agent](agentCacheSize)
	return &Engine{
		loader:    deps.Loader,
		idx:       deps.Index,
		embedder:  deps.Embedder,
		guardrail: deps.Guardrail,
		reranker:  deps.Reranker,
		synth:     deps.Synth,
		attrib:    deps.Attrib,
		faith:     deps.Faith,
		conf:      deps.Conf,
		retrieval: deps.Retrieval,
		cache:     cache,
		logger:    slog.With("component", "reasoning_engine"),
	}
}

// Invalidate drops the cached snapshot for an agent. Called on status
// transitions and deletes.
func (e *Engine) Invalidate(tenantID, name string) {
	e.cache.Remove(cacheKey(tenantID, name))
}

func cacheKey(tenantID, name string) string {
	return tenantID + "/" + name
}

// Reason answers one query against a compiled agent.
func (e *Engine) Reason(ctx context.Context, tenantID, agentName, query, multimodalContext string) (*models.Answer, error) {
	agent, err := e.loadAgent(ctx, tenantID, agentName)
	if err != nil {
		return nil, err
	}
	if agent.Status != models.AgentStatusReady {
		return nil, &NotReadyError{Name: agentName, Status: agent.Status}
	}
	if agent.EmbeddingModel != "" && agent.EmbeddingModel != e.embedder.Model() {
		return nil, fmt.Errorf("%w (agent: %s, configured: %s)",
			ErrEmbeddingModelMismatch, agent.EmbeddingModel, e.embedder.Model())
	}

	log := e.logger.With("tenant_id", tenantID, "agent", agentName)

	// Guardrail and retrieval see query+multimodal combined; the LLM
	// receives them as separate labeled sections.
	fullQuery := query
	if multimodalContext != "" {
		fullQuery = query + " " + multimodalContext
	}

	check := e.guardrail.Check(fullQuery, agent.DomainKeywords, agent.PromptAnalysis)
	log.Info("Guardrail verdict", "score", check.Score, "in_domain", check.InDomain)
	if !check.InDomain {
		return e.outOfDomainAnswer(agent, query, multimodalContext, check), nil
	}

	queryVecs, err := e.embedder.Embed(ctx, []string{fullQuery})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	fused, err := index.Hybrid(ctx, e.idx, agent.ID, fullQuery, queryVecs[0], e.retrieval)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	if len(fused) == 0 {
		return e.noResultsAnswer(agent, query, multimodalContext, check), nil
	}
	topRRF := fused[0].RRF

	top, degraded := e.reranker.Rerank(ctx, fullQuery, fused, e.retrieval.RerankK)

	contents := make([]string, len(top))
	for i, c := range top {
		contents[i] = c.Content
	}
	context_ := strings.Join(contents, "\n\n---\n\n")

	answer := e.synth.Generate(ctx, query, context_, agent.SystemPrompt, multimodalContext)

	attributed, err := e.attrib.Attribute(ctx, answer, top)
	if err != nil {
		log.Warn("Attribution failed, returning uncited answer", "error", err)
		attributed = models.AttributedAnswer{AnswerWithCitations: answer}
	}

	faith := e.faith.Score(ctx, answer, context_)

	normSim := e.conf.NormalizeSimilarity(topRRF)
	normRerank := 0.5
	if !degraded {
		normRerank = e.conf.NormalizeRerank(top[0].Rerank)
	}
	confidence := e.conf.Compute(normSim, normRerank, faith.Score)

	log.Info("Query answered",
		"chunks", len(fused),
		"top_rrf", topRRF,
		"reranker_degraded", degraded,
		"faithfulness", faith.Score,
		"confidence", confidence)

	return &models.Answer{
		Text:       attributed.AnswerWithCitations,
		Confidence: confidence,
		InDomain:   true,
		Explainability: models.Explainability{
			WhyThisAnswer: models.WhyThisAnswer{
				Summary: fmt.Sprintf("Answer derived from %d retrieved sources with %.0f%% faithfulness",
					len(fused), faith.Score*100),
				Sources: explainSources(attributed.Sources),
			},
			ConfidenceBreakdown: models.ConfidenceBreakdown{
				Overall:          confidence,
				DomainRelevance:  check.Score,
				RetrievalQuality: normSim,
				RerankScore:      top[0].Rerank,
				Faithfulness:     faith.Score,
				ClaimsSupported:  fmt.Sprintf("%d/%d", faith.SupportedClaims, faith.TotalClaims),
			},
			UnsupportedClaims: truncateList(faith.UnsupportedClaims, 3),
			Inputs: models.ExplainInputs{
				OriginalQuery:   query,
				HasMultimodal:   multimodalContext != "",
				ChunksRetrieved: len(fused),
			},
		},
	}, nil
}

func (e *Engine) loadAgent(ctx context.Context, tenantID, name string) (*models.Agent, error) {
	key := cacheKey(tenantID, name)
	if agent, ok := e.cache.Get(key); ok {
		return agent, nil
	}
	agent, err := e.loader.GetAgent(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	// Only ready agents are safe to cache: other statuses change.
	if agent.Status == models.AgentStatusReady {
		e.cache.Add(key, agent)
	}
	return agent, nil
}

func (e *Engine) outOfDomainAnswer(agent *models.Agent, query, multimodal string, check models.DomainCheck) *models.Answer {
	domain := agent.Domain
	if domain == "" {
		domain = "general"
	}
	title := strings.ToUpper(domain[:1]) + domain[1:]
	text := fmt.Sprintf(`I apologize, but your question appears to be outside my area of expertise.

I am a specialized **%s** assistant and can only answer questions related to that domain based on my knowledge base.

Your query doesn't seem to match the topics I'm trained on (relevance score: %.0f%%).

**How I can help:**
- Ask questions related to %s
- Query information from my knowledge base
- Get explanations about %s-related topics

Would you like to rephrase your question to focus on %s?`, title, check.Score*100, domain, domain, domain)

	confidence := e.conf.OutOfDomain()
	return &models.Answer{
		Text:       text,
		Confidence: confidence,
		InDomain:   false,
		Explainability: models.Explainability{
			WhyThisAnswer: models.WhyThisAnswer{
				Summary: "Query rejected - outside domain expertise",
			},
			ConfidenceBreakdown: models.ConfidenceBreakdown{
				Overall:         confidence,
				DomainRelevance: check.Score,
			},
			RejectionReason: "out_of_domain",
			Inputs: models.ExplainInputs{
				OriginalQuery: query,
				HasMultimodal: multimodal != "",
			},
		},
	}
}

func (e *Engine) noResultsAnswer(agent *models.Agent, query, multimodal string, check models.DomainCheck) *models.Answer {
	domain := agent.Domain
	if domain == "" {
		domain = "the domain"
	}
	text := fmt.Sprintf(`I couldn't find relevant information in my knowledge base to answer your question.

This could mean:
- The topic isn't covered in my training data
- Try rephrasing your question with different keywords
- Ask about a more specific aspect of %s`, domain)

	confidence := e.conf.NoResults()
	return &models.Answer{
		Text:       text,
		Confidence: confidence,
		InDomain:   true,
		Explainability: models.Explainability{
			WhyThisAnswer: models.WhyThisAnswer{
				Summary: "No relevant chunks found in knowledge base",
			},
			ConfidenceBreakdown: models.ConfidenceBreakdown{
				Overall:         confidence,
				DomainRelevance: check.Score,
			},
			RejectionReason: "no_relevant_retrieval",
			Inputs: models.ExplainInputs{
				OriginalQuery: query,
				HasMultimodal: multimodal != "",
			},
		},
	}
}

func explainSources(sources []models.AttributedSource) []models.ExplainSource {
	out := make([]models.ExplainSource, 0, len(sources))
	for _, s := range sources {
		out = append(out, models.ExplainSource{
			Citation:       s.Citation,
			SourceFile:     s.Source,
			ContentPreview: s.Preview,
			RelevanceScore: s.Similarity,
		})
	}
	return out
}

func truncateList(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
