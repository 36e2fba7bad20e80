package assistant

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"compat-assistant/internal/domain/model"
)

//go:embed templates
var TemplatesFS embed.FS

// Bank holds the reply texts: a greeting, a clarifying prompt for general
// questions and a list of candidate replies per domain.
type Bank struct {
	greeting  string
	clarify   string
	templates map[model.Domain][]string
}

type bankFile struct {
	Greeting  string              `yaml:"greeting"`
	Clarify   string              `yaml:"clarify"`
	Templates map[string][]string `yaml:"templates"`
}

// DefaultBank loads the embedded bank for langCode.
func DefaultBank(langCode string) (*Bank, error) {
	return LoadBank(TemplatesFS, path.Join("templates", langCode+".yaml"))
}

// LoadBank reads a bank from any fs.FS, so it can come from the embedded
// files or from a directory on disk.
func LoadBank(fsys fs.FS, file string) (*Bank, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", file, err)
	}
	return newBankFromBytes(data)
}

func newBankFromBytes(data []byte) (*Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}
	if strings.TrimSpace(f.Clarify) == "" {
		return nil, fmt.Errorf("template file: clarify prompt is required")
	}

	b := &Bank{
		greeting:  strings.TrimSpace(f.Greeting),
		clarify:   strings.TrimSpace(f.Clarify),
		templates: make(map[model.Domain][]string, len(f.Templates)),
	}
	for key, texts := range f.Templates {
		d := model.Domain(strings.ToLower(key))
		if !d.Valid() {
			return nil, fmt.Errorf("template file: unknown domain %q", key)
		}
		for _, t := range texts {
			if t = strings.TrimSpace(t); t != "" {
				b.templates[d] = append(b.templates[d], t)
			}
		}
	}
	return b, nil
}

// NewBank builds a bank in code; used by tests and embedders.
func NewBank(greeting, clarify string, templates map[model.Domain][]string) *Bank {
	b := &Bank{greeting: greeting, clarify: clarify, templates: map[model.Domain][]string{}}
	for d, texts := range templates {
		b.templates[d] = append([]string(nil), texts...)
	}
	return b
}

// Greeting falls back to the clarifying prompt when no greeting is configured.
func (b *Bank) Greeting() string {
	if b.greeting == "" {
		return b.clarify
	}
	return b.greeting
}

func (b *Bank) Clarify() string { return b.clarify }

// Templates returns a copy of the candidates for d.
func (b *Bank) Templates(d model.Domain) []string {
	return append([]string(nil), b.templates[d]...)
}
