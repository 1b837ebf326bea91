//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import (
	"fmt"
	"sort"
	"strings"
)

// themesClause returns an array-overlap condition on the themes column using
// the given 1-indexed placeholder.
func themesClause(column string, param int) string {
	return fmt.Sprintf("%s && $%d::text[]", ident(column), param)
}

// normalizeThemes lower-cases, trims and de-duplicates a theme filter. The
// result is sorted so equal filters produce equal arguments.
func normalizeThemes(themes []string) []string {
	if len(themes) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(themes))
	out := make([]string, 0, len(themes))
	for _, t := range themes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)

	if len(out) == 0 {
		return nil
	}
	return out
}
