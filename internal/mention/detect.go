// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mention

import (
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/jeranaias/tabchat/internal/tabs"
)

// Active is a mention being typed. Start is the rune offset of the '@', End
// the cursor. Term is the text between them.
type Active struct {
	Start int
	End   int
	Term  string
}

// Detect scans backward from cursor (a rune offset) for the nearest '@' not
// separated from it by whitespace. A run starting with '"' is an already
// committed reference and does not count.
func Detect(text string, cursor int) (Active, bool) {
	runes := []rune(text)
	if cursor < 0 || cursor > len(runes) {
		return Active{}, false
	}

	for i := cursor - 1; i >= 0; i-- {
		r := runes[i]
		if unicode.IsSpace(r) {
			return Active{}, false
		}
		if r != '@' {
			continue
		}
		term := string(runes[i+1 : cursor])
		if strings.HasPrefix(term, `"`) {
			return Active{}, false
		}
		return Active{Start: i, End: cursor, Term: term}, true
	}
	return Active{}, false
}

// Filter returns the tabs whose title or URL contains term, ignoring case,
// in snapshot order. An empty term matches every tab.
func Filter(snapshot []tabs.Tab, term string) []tabs.Tab {
	needle := strings.ToLower(term)
	return lo.Filter(snapshot, func(tab tabs.Tab, _ int) bool {
		return needle == "" ||
			strings.Contains(strings.ToLower(tab.Title), needle) ||
			strings.Contains(strings.ToLower(tab.URL), needle)
	})
}
