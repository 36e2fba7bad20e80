package assistant

import "strings"

// Lexicon maps keywords to domains. Matching is case-insensitive substring
// matching, so keywords are stored lower-cased.
type Lexicon struct {
	Database  []string `yaml:"database"`
	WebServer []string `yaml:"webserver"`
	OS        []string `yaml:"os"`
}

func DefaultLexicon() Lexicon {
	return Lexicon{
		Database:  []string{"database", "mysql", "postgresql", "mongodb", "oracle", "sql server", "redis"},
		WebServer: []string{"server", "apache", "nginx", "iis", "tomcat", "web server"},
		OS:        []string{"operating system", "windows", "linux", "macos", "mac", "ubuntu", "centos", "redhat", "os compatibility"},
	}
}

// Merge returns a lexicon holding the keywords of l plus extra, lower-cased,
// trimmed and without duplicates.
func (l Lexicon) Merge(extra Lexicon) Lexicon {
	return Lexicon{
		Database:  mergeKeywords(l.Database, extra.Database),
		WebServer: mergeKeywords(l.WebServer, extra.WebServer),
		OS:        mergeKeywords(l.OS, extra.OS),
	}
}

func mergeKeywords(sets ...[]string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, set := range sets {
		for _, kw := range set {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}
