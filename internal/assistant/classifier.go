package assistant

import (
	"strings"

	"compat-assistant/internal/domain/model"
)

// Classifier assigns a topic domain to free text.
//
// Precedence is database, then webserver, then os, then general. Database
// products share words with other domains ("sql server", "redis") and must
// not be shadowed by them.
type Classifier struct {
	lex Lexicon
}

func NewClassifier(lex Lexicon) *Classifier {
	return &Classifier{lex: Lexicon{}.Merge(lex)}
}

// Classify is total: any string, including "", maps to a domain.
func (c *Classifier) Classify(text string) model.Domain {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, c.lex.Database):
		return model.DomainDatabase
	case containsAny(lower, c.lex.WebServer):
		return model.DomainWebServer
	case containsAny(lower, c.lex.OS):
		return model.DomainOS
	default:
		return model.DomainGeneral
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
