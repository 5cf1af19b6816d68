package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go
// templates. Uses {{.VAR_NAME}} syntax to avoid collision with $ in
// connection strings and passwords.
//
// Examples:
//   - {{.ANALYZER_API_KEY}} → value of ANALYZER_API_KEY
//   - postgres://app:{{.DB_PASSWORD}}@{{.DB_HOST}}/refinery → both expanded
//   - p@ss$word → preserved literally ($ is not touched)
//
// Missing variables expand to empty string (unless the template is
// malformed); validation catches required fields left empty.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		// If template parsing fails, return original data.
		// This allows YAML without any template syntax to pass through.
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// Split only on the first = to handle values containing =.
		if key, value, ok := strings.Cut(env, "="); ok && key != "" {
			envMap[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		// If execution fails, return original data.
		return data
	}

	return buf.Bytes()
}
