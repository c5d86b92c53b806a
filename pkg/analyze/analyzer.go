// Package analyze extracts a structured profile from an agent's
// system prompt: domain, keywords, tone, and capabilities.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/groundline/groundline/pkg/llm"
	"github.com/groundline/groundline/pkg/models"
)

const analysisPrompt = `You are a prompt analysis expert. Analyze the following system prompt and extract structured metadata.

SYSTEM PROMPT TO ANALYZE:
"""
%s
"""

Respond with a JSON object containing:
{
    "domain": "primary domain (e.g., medical, legal, cooking, technology, finance, education)",
    "sub_domains": ["list", "of", "related", "sub-domains"],
    "personality": "brief personality description (e.g., friendly, professional, empathetic)",
    "constraints": ["list", "of", "behavioral", "constraints"],
    "suggested_name": "creative agent name based on domain and personality",
    "domain_keywords": ["20", "keywords", "that", "define", "this", "domain"],
    "tone": "communication tone (formal/casual/empathetic/technical)",
    "capabilities": ["list", "of", "what", "agent", "can", "do"]
}

Be thorough with domain_keywords - these are crucial for query filtering.
Make the suggested_name memorable and relevant.`

// Analyzer turns a system prompt into a PromptProfile, with a lexical
// fallback when the LLM is unavailable.
type Analyzer struct {
	client llm.Client
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer. The client may not be nil.
func NewAnalyzer(client llm.Client) *Analyzer {
	if client == nil {
		panic("analyze.NewAnalyzer: client is nil")
	}
	return &Analyzer{
		client: client,
		logger: slog.With("component", "analyzer"),
	}
}

// Analyze extracts a profile from the system prompt. LLM or JSON
// failures fall back to lexical domain detection; Analyze itself
// never fails.
func (a *Analyzer) Analyze(ctx context.Context, systemPrompt string) *models.PromptProfile {
	resp, err := a.client.Complete(ctx, llm.Request{
		Kind:        llm.KindChat,
		System:      "You are a JSON extraction assistant. Return only valid JSON, no markdown or explanation.",
		User:        fmt.Sprintf(analysisPrompt, systemPrompt),
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		a.logger.Warn("Prompt analysis LLM call failed, using lexical fallback", "error", err)
		return a.fallback(systemPrompt)
	}

	profile := &models.PromptProfile{}
	if err := json.Unmarshal([]byte(resp), profile); err != nil {
		a.logger.Warn("Prompt analysis returned unparseable JSON, using lexical fallback", "error", err)
		return a.fallback(systemPrompt)
	}

	a.ensureFields(profile)
	a.logger.Info("Prompt analyzed", "domain", profile.Domain, "keywords", len(profile.DomainKeywords))
	return profile
}

// ensureFields fills missing fields with defaults and pads thin
// keyword lists from the domain-defaults table.
func (a *Analyzer) ensureFields(p *models.PromptProfile) {
	if p.Domain == "" {
		p.Domain = "general"
	}
	if p.Personality == "" {
		p.Personality = "helpful and professional"
	}
	if p.SuggestedName == "" {
		p.SuggestedName = "Groundline Agent"
	}
	if p.Tone == "" {
		p.Tone = "professional"
	}
	if len(p.DomainKeywords) < 10 {
		p.DomainKeywords = expandKeywords(p.DomainKeywords, p.Domain)
	}
	p.DomainKeywords = domainFirst(p.DomainKeywords, p.Domain)
}

// fallback synthesizes a profile from lexical domain detection.
func (a *Analyzer) fallback(systemPrompt string) *models.PromptProfile {
	words := strings.Fields(strings.ToLower(systemPrompt))
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	domain := "general"
	for _, d := range detectOrder {
		for _, indicator := range domainIndicators[d] {
			if wordSet[indicator] {
				domain = d
				break
			}
		}
		if domain != "general" {
			break
		}
	}

	title := strings.ToUpper(domain[:1]) + domain[1:]
	return &models.PromptProfile{
		Domain:         domain,
		SubDomains:     []string{},
		Personality:    "helpful assistant",
		Constraints:    []string{"Stay within knowledge base", "Be accurate"},
		SuggestedName:  fmt.Sprintf("Groundline %s Agent", title),
		DomainKeywords: domainFirst(expandKeywords(nil, domain), domain),
		Tone:           "professional",
		Capabilities:   []string{"Answer questions", "Provide information"},
	}
}

// expandKeywords pads a keyword list to 20 entries from the
// domain-defaults table and guarantees the domain itself is present.
func expandKeywords(existing []string, domain string) []string {
	keywords := append([]string(nil), existing...)

	if defaults, ok := domainDefaults[strings.ToLower(domain)]; ok {
		for _, kw := range defaults {
			if len(keywords) >= 20 {
				break
			}
			if !containsFold(keywords, kw) {
				keywords = append(keywords, kw)
			}
		}
	}
	if !containsFold(keywords, domain) {
		keywords = append(keywords, domain)
	}
	if len(keywords) > 20 {
		keywords = keywords[:20]
	}
	return keywords
}

// domainFirst moves (or inserts) the domain to the front of the list,
// deduplicating case-insensitively.
func domainFirst(keywords []string, domain string) []string {
	out := []string{domain}
	for _, kw := range keywords {
		if !strings.EqualFold(kw, domain) {
			out = append(out, kw)
		}
	}
	return out
}

func containsFold(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}
