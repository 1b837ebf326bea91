//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package bm25

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "simple text",
			input:  "hello world",
			expect: []string{"hello", "world"},
		},
		{
			name:   "with punctuation",
			input:  "Friendship, Magic!",
			expect: []string{"friendship", "magic"},
		},
		{
			name:   "numbers kept, single characters dropped",
			input:  "1984 by George Orwell, part 2",
			expect: []string{"1984", "george", "orwell", "part"},
		},
		{
			name:   "stop words removed",
			input:  "I want a book about the war and freedom",
			expect: []string{"war", "freedom"},
		},
		{
			name:   "empty string",
			input:  "",
			expect: nil,
		},
		{
			name:   "only stop words",
			input:  "the and of",
			expect: nil,
		},
		{
			name:   "unicode letters",
			input:  "Cien años de soledad",
			expect: []string{"cien", "años", "de", "soledad"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if !reflect.DeepEqual(got, tt.expect) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.expect)
			}
		})
	}
}

func TestFrequencies(t *testing.T) {
	freqs, n := frequencies("magic, Magic and dragons")
	if n != 3 {
		t.Errorf("expected 3 tokens, got %d", n)
	}
	if freqs["magic"] != 2 || freqs["dragons"] != 1 {
		t.Errorf("unexpected frequencies: %v", freqs)
	}
}
