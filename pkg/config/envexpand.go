package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes environment variables into YAML content using
// {{.VAR_NAME}} template syntax. Plain $VAR and ${VAR} are left alone,
// so regex patterns and passwords containing dollars survive intact.
//
// Missing variables expand to empty strings; config validation catches
// required fields that end up empty. Content that fails to parse or
// execute as a template is returned unchanged so the YAML parser can
// report the real problem.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
