//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package illustration

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

// ThemeBucket maps query keywords to a theme name.
type ThemeBucket struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Tables holds the denylist, theme buckets and policy pattern. A Tables
// value is read-only once loaded.
type Tables struct {
	Version       int           `yaml:"version"`
	Denylist      []string      `yaml:"denylist"`
	Themes        []ThemeBucket `yaml:"themes"`
	DefaultTheme  string        `yaml:"default_theme"`
	PolicyPattern string        `yaml:"policy_pattern"`

	deny   []*regexp.Regexp // longest term first
	policy *regexp.Regexp
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	quotes     = regexp.MustCompile(`["“”‘’]+`)
)

// DefaultTables returns the built-in tables.
func DefaultTables() (*Tables, error) {
	return ParseTables(defaultTables)
}

// LoadTables reads tables from path, or returns the built-in tables when
// path is empty.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return DefaultTables()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read illustration tables: %w", err)
	}

	t, err := ParseTables(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTables parses and compiles tables from YAML.
func ParseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse illustration tables: %w", err)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tables) compile() error {
	if t.Version < 1 {
		return fmt.Errorf("illustration tables: version must be at least 1")
	}
	if strings.TrimSpace(t.DefaultTheme) == "" {
		return fmt.Errorf("illustration tables: default_theme is required")
	}
	if t.PolicyPattern == "" {
		return fmt.Errorf("illustration tables: policy_pattern is required")
	}

	policy, err := regexp.Compile(t.PolicyPattern)
	if err != nil {
		return fmt.Errorf("illustration tables: invalid policy_pattern: %w", err)
	}
	t.policy = policy

	terms := make([]string, 0, len(t.Denylist))
	for _, term := range t.Denylist {
		term = strings.TrimSpace(term)
		if term == "" {
			return fmt.Errorf("illustration tables: empty denylist term")
		}
		terms = append(terms, term)
	}
	sort.SliceStable(terms, func(i, j int) bool {
		return len(terms[i]) > len(terms[j])
	})

	t.deny = make([]*regexp.Regexp, len(terms))
	for i, term := range terms {
		t.deny[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
	}

	for i, b := range t.Themes {
		if b.Name == "" || len(b.Keywords) == 0 {
			return fmt.Errorf("illustration tables: theme %d needs a name and keywords", i+1)
		}
	}
	return nil
}

// Sanitize strips quote characters from text and removes every denylist
// term, ignoring case, collapsing whitespace as it goes. Removal repeats
// until no term is left, so removing one occurrence cannot assemble another.
func (t *Tables) Sanitize(text string) string {
	out := quotes.ReplaceAllString(text, "")
	for {
		out = whitespace.ReplaceAllString(out, " ")
		changed := false
		for _, re := range t.deny {
			if re.MatchString(out) {
				out = re.ReplaceAllString(out, "")
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.TrimSpace(out)
}

// InferThemes returns the names of the buckets whose keywords occur in text,
// in table order, or the default theme when none do.
func (t *Tables) InferThemes(text string) []string {
	lower := strings.ToLower(text)

	var themes []string
	for _, b := range t.Themes {
		for _, kw := range b.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				themes = append(themes, b.Name)
				break
			}
		}
	}
	if len(themes) == 0 {
		return []string{t.DefaultTheme}
	}
	return themes
}

// IsPolicyRejection reports whether a provider error message indicates a
// content-policy rejection.
func (t *Tables) IsPolicyRejection(msg string) bool {
	return t.policy.MatchString(msg)
}
