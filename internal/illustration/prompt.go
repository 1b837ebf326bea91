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
	"strings"
)

// Kind selects the framing of an illustration.
type Kind string

// Illustration kinds. An empty kind is a book-cover style image.
const (
	KindCover Kind = ""
	KindScene Kind = "scene"
	KindTheme Kind = "theme"
)

// DefaultStyle is used when no style or an unknown style is requested.
const DefaultStyle = "illustration"

// Styles lists the accepted style names.
var Styles = []string{"illustration", "digital", "oil", "watercolor", "photoreal", "pixel"}

// NormalizeStyle returns style if it is accepted, otherwise DefaultStyle.
func NormalizeStyle(style string) string {
	style = strings.ToLower(strings.TrimSpace(style))
	for _, s := range Styles {
		if s == style {
			return s
		}
	}
	return DefaultStyle
}

// ParseKind accepts "scene" and "theme"; anything else is KindCover.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindScene:
		return KindScene
	case KindTheme:
		return KindTheme
	}
	return KindCover
}

const (
	compositionLine = "Composition: single clear focal point, clean background, tasteful negative space."
)

func styleLine(style string) string {
	return "Style: " + style + ", richly textured, soft cinematic lighting."
}

// queryPrompt builds the first attempt's prompt. sanitized must already be
// stripped of denylisted terms.
func queryPrompt(kind Kind, style, sanitized string, themes []string) string {
	mode := "Create a symbolic illustration that embodies the main themes of the request."
	if kind == KindScene {
		mode = "Create a cinematic illustration of a key scene inspired by the request."
	}

	parts := []string{mode}
	if sanitized != "" {
		parts = append(parts, "Inspiration from the user request (paraphrased): "+sanitized+".")
	}
	parts = append(parts,
		"Reflect these safe themes: "+strings.Join(themes, ", ")+".",
		styleLine(style),
		compositionLine,
		"Do not include any text, logos, brand iconography, or recognizable copyrighted characters.",
		"Family-friendly, non-violent, non-sexual.",
	)
	return strings.Join(parts, " ")
}

// softPrompt builds the fallback prompt. It never contains the user's text.
func softPrompt(kind Kind, style string, themes []string) string {
	var mode string
	switch kind {
	case KindScene:
		mode = "Create a cinematic illustration of a serene, family-friendly scene."
	case KindTheme:
		mode = "Create a symbolic illustration emphasizing universal literary themes."
	default:
		mode = "Design a suggestive BOOK COVER style illustration (portrait)."
	}

	return strings.Join([]string{
		mode,
		"Key themes: " + strings.Join(themes, ", ") + ".",
		"Atmosphere: uplifting, inviting, imaginative.",
		styleLine(style),
		compositionLine,
		"No text, no logos, no brand iconography, no real people.",
	}, " ")
}
