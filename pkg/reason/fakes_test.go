package reason

import (
	"context"
	"errors"
	"strings"

	"github.com/groundline/groundline/pkg/llm"
)

// scriptedLLM returns canned responses keyed by a substring of the
// user message, in the order handlers are checked.
type scriptedLLM struct {
	handlers []scriptedHandler
	calls    []llm.Request
}

type scriptedHandler struct {
	match    string
	response string
	err      error
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.calls = append(s.calls, req)
	for _, h := range s.handlers {
		if h.match == "" || strings.Contains(req.User, h.match) || strings.Contains(req.System, h.match) {
			return h.response, h.err
		}
	}
	return "", errors.New("scriptedLLM: no handler matched")
}

func (s *scriptedLLM) Transcribe(context.Context, string, []byte) (string, error) {
	return "", errors.New("not scripted")
}

func (s *scriptedLLM) DescribeImage(context.Context, string) (string, error) {
	return "", errors.New("not scripted")
}

// mapEmbedder returns fixed vectors for known texts and a default for
// everything else. Dimension 4.
type mapEmbedder struct {
	vectors map[string][]float32
	model   string
	err     error
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 1, 1, 1}
		}
	}
	return out, nil
}

func (m *mapEmbedder) Model() string {
	if m.model == "" {
		return "test-embedder"
	}
	return m.model
}

func (m *mapEmbedder) Dimension() int { return 4 }
