//go:build !integration

package assistant

import (
	"testing"

	"compat-assistant/internal/domain/model"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultLexicon())

	cases := []struct {
		name string
		text string
		want model.Domain
	}{
		{"empty", "", model.DomainGeneral},
		{"blank", "   ", model.DomainGeneral},
		{"no keyword", "hello there", model.DomainGeneral},
		{"database", "Is MySQL compatible with my setup?", model.DomainDatabase},
		{"webserver", "apache vs nginx", model.DomainWebServer},
		{"os", "windows or linux", model.DomainOS},
		{"database beats os", "Can I run PostgreSQL on Ubuntu?", model.DomainDatabase},
		{"database beats webserver", "Which SQL Server edition?", model.DomainDatabase},
		{"webserver beats os", "nginx on windows", model.DomainWebServer},
		{"redis is a database", "redis on macos", model.DomainDatabase},
		{"quick action os", "Check OS compatibility", model.DomainOS},
		{"quick action database", "Database requirements", model.DomainDatabase},
		{"quick action webserver", "Web server setup", model.DomainWebServer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.text); got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := NewClassifier(DefaultLexicon())
	for _, pair := range [][2]string{{"MySQL", "mysql"}, {"NGINX", "nginx"}, {"Ubuntu", "UBUNTU"}} {
		if a, b := c.Classify(pair[0]), c.Classify(pair[1]); a != b {
			t.Errorf("Classify(%q)=%s but Classify(%q)=%s", pair[0], a, pair[1], b)
		}
	}
}

func TestClassifyDatabasePrecedence(t *testing.T) {
	c := NewClassifier(DefaultLexicon())
	lex := DefaultLexicon()
	for _, db := range lex.Database {
		for _, os := range lex.OS {
			text := "question about " + os + " and " + db
			if got := c.Classify(text); got != model.DomainDatabase {
				t.Fatalf("Classify(%q) = %s, want database", text, got)
			}
		}
	}
}

func TestLexiconMerge(t *testing.T) {
	lex := DefaultLexicon().Merge(Lexicon{Database: []string{"  MariaDB ", "mysql"}, OS: []string{"Debian"}})
	c := NewClassifier(lex)

	if got := c.Classify("mariadb tuning"); got != model.DomainDatabase {
		t.Errorf("extra database keyword not applied, got %s", got)
	}
	if got := c.Classify("debian 12"); got != model.DomainOS {
		t.Errorf("extra os keyword not applied, got %s", got)
	}
	count := 0
	for _, kw := range lex.Database {
		if kw == "mysql" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected mysql once, got %d", count)
	}
}
