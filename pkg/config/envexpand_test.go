package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "substitutes template variables",
			input: "api_key_env: {{.KEY_NAME}}",
			env:   map[string]string{"KEY_NAME": "GROQ_API_KEY"},
			want:  "api_key_env: GROQ_API_KEY",
		},
		{
			name:  "multiple variables in one line",
			input: "base_url: {{.SCHEME}}://{{.HOST}}:{{.PORT}}/v1",
			env:   map[string]string{"SCHEME": "http", "HOST": "tei", "PORT": "8081"},
			want:  "base_url: http://tei:8081/v1",
		},
		{
			name:  "shell-style dollars are untouched",
			input: `pattern: "^user_\\$[0-9]+$"` + "\npath: ${HOME}/data",
			env:   map[string]string{"HOME": "/root"},
			want:  `pattern: "^user_\\$[0-9]+$"` + "\npath: ${HOME}/data",
		},
		{
			name:  "missing variable becomes empty",
			input: "url: {{.NOT_SET_ANYWHERE}}",
			want:  "url: ",
		},
		{
			name:  "content without templates passes through",
			input: "reranker:\n  url: \"\"\n  timeout: 10s",
			want:  "reranker:\n  url: \"\"\n  timeout: 10s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, string(ExpandEnv([]byte(tt.input))))
		})
	}
}

// Malformed template syntax must pass through unchanged so the YAML
// parser reports the real error, and env values must not leak.
func TestExpandEnvMalformedTemplates(t *testing.T) {
	t.Setenv("API_KEY", "should-not-appear")

	for _, input := range []string{
		"api_key: {{.API_KEY",
		"api_key: {{",
		"api_key: {{.API_KEY | upper}}",
		"key: {{}}",
	} {
		got := ExpandEnv([]byte(input))
		assert.Equal(t, input, string(got))
		assert.NotContains(t, string(got), "should-not-appear")
	}
}

func TestExpandEnvFeedsYAMLParser(t *testing.T) {
	t.Setenv("EMBED_HOST", "tei.internal")

	expanded := ExpandEnv([]byte("embedding:\n  base_url: http://{{.EMBED_HOST}}/v1\n"))

	var out map[string]map[string]string
	require.NoError(t, yaml.Unmarshal(expanded, &out))
	assert.Equal(t, "http://tei.internal/v1", out["embedding"]["base_url"])
}
