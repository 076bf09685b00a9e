// Package renderer renders Go text templates strictly: referencing an
// undefined map key is an error rather than "<no value>". It is used for
// konfig files before they are parsed, for templated repo paths and URLs,
// and for komponent templates.
package renderer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kreate/internal/deep"
)

// Render executes text as a template named name with vars as dot.
func Render(name, text string, vars map[string]any) (string, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(Funcs()).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Funcs returns the helper functions available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"toYaml":   toYaml,
		"indent":   indent,
		"nindent":  nindent,
		"default":  dflt,
		"required": required,
		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		"quote":    quote,
		"get":      get,
		"hasKey":   hasKey,
	}
}

func toYaml(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

func nindent(spaces int, s string) string {
	return "\n" + indent(spaces, s)
}

// dflt follows the pipeline convention: {{ .x | default "y" }}.
func dflt(def, v any) any {
	if empty(v) {
		return def
	}
	return v
}

func required(msg string, v any) (any, error) {
	if empty(v) {
		return nil, fmt.Errorf("%s", msg)
	}
	return v, nil
}

func quote(v any) string {
	return fmt.Sprintf("%q", fmt.Sprint(v))
}

func get(obj any, path string) any {
	return deep.Get(obj, path, nil)
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
