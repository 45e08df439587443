// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mention implements @mention detection, autocomplete and the
// @"Title" wire format for referencing browser tabs in a query.
package mention

import (
	"regexp"
	"strings"

	"github.com/jeranaias/tabchat/internal/tabs"
)

// =============================================================================
// SEGMENTS
// =============================================================================

// SegmentKind distinguishes literal text from tab references.
type SegmentKind int

const (
	Literal   SegmentKind = iota // plain typed text
	Reference                    // @"Title"
)

// String returns the string representation of the segment kind.
func (k SegmentKind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Reference:
		return "reference"
	default:
		return "unknown"
	}
}

// Segment is one piece of a query: literal text, or a reference to a tab.
// For references Text holds the tab title and Tab the resolved tab, which is
// zero until resolved against a snapshot.
type Segment struct {
	Kind SegmentKind
	Text string
	Tab  tabs.Tab
}

// Lit builds a literal segment.
func Lit(text string) Segment {
	return Segment{Kind: Literal, Text: text}
}

// Ref builds a reference segment for tab.
func Ref(tab tabs.Tab) Segment {
	return Segment{Kind: Reference, Text: tab.Title, Tab: tab}
}

// referencePattern matches @"Title" with backslash escapes inside the quotes.
var referencePattern = regexp.MustCompile(`@"((?:[^"\\]|\\.)*)"`)

// =============================================================================
// ENCODE / DECODE
// =============================================================================

// Token renders the canonical wire token for a title.
func Token(title string) string {
	var sb strings.Builder
	sb.Grow(len(title) + 3)
	sb.WriteString(`@"`)
	for _, r := range title {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

// unescape reverses the escaping applied by Token.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	escaped := false
	for _, r := range s {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// Encode renders segments in wire form.
func Encode(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		switch seg.Kind {
		case Reference:
			sb.WriteString(Token(seg.Text))
		default:
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

// Parse splits wire text into segments without resolving references.
// Adjacent literals are merged and empty literals omitted.
func Parse(text string) []Segment {
	var segments []Segment
	last := 0
	for _, m := range referencePattern.FindAllStringSubmatchIndex(text, -1) {
		segments = appendLiteral(segments, text[last:m[0]])
		title := unescape(text[m[2]:m[3]])
		segments = append(segments, Segment{Kind: Reference, Text: title, Tab: tabs.Tab{Title: title}})
		last = m[1]
	}
	return appendLiteral(segments, text[last:])
}

// Decode parses wire text and resolves every reference by exact title against
// snapshot. References without a matching tab are dropped.
func Decode(text string, snapshot []tabs.Tab) []Segment {
	parsed := Parse(text)
	segments := make([]Segment, 0, len(parsed))
	for _, seg := range parsed {
		if seg.Kind != Reference {
			segments = appendLiteral(segments, seg.Text)
			continue
		}
		tab, ok := FindByTitle(snapshot, seg.Text)
		if !ok {
			continue
		}
		segments = append(segments, Ref(tab))
	}
	return segments
}

// Resolve prepares a query for sending: unresolvable references are dropped,
// surviving ones are re-encoded as @"Title" and returned as tabs in order of
// first appearance.
func Resolve(text string, snapshot []tabs.Tab) (string, []tabs.Tab) {
	segments := Decode(text, snapshot)
	return Encode(segments), Tabs(segments)
}

// Tabs returns the distinct referenced tabs in order of first appearance.
func Tabs(segments []Segment) []tabs.Tab {
	var out []tabs.Tab
	seen := make(map[string]bool)
	for _, seg := range segments {
		if seg.Kind != Reference {
			continue
		}
		key := seg.Tab.ID + "\x00" + seg.Tab.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, seg.Tab)
	}
	return out
}

// HasMentions reports whether text contains at least one reference token.
func HasMentions(text string) bool {
	return referencePattern.MatchString(text)
}

// FindByTitle returns the first tab in snapshot whose title equals title.
func FindByTitle(snapshot []tabs.Tab, title string) (tabs.Tab, bool) {
	for _, tab := range snapshot {
		if tab.Title == title {
			return tab, true
		}
	}
	return tabs.Tab{}, false
}

func appendLiteral(segments []Segment, text string) []Segment {
	if text == "" {
		return segments
	}
	if n := len(segments); n > 0 && segments[n-1].Kind == Literal {
		segments[n-1].Text += text
		return segments
	}
	return append(segments, Lit(text))
}
