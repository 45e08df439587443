// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package extract turns an HTML document into bounded plain text.
package extract

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxContentLength is the number of characters kept from a document.
	MaxContentLength = 10000

	// TruncationMarker is appended to content cut at MaxContentLength.
	TruncationMarker = "..."
)

// ContentSelectors is the ordered preference list of content containers.
// The first selector with a match wins; body is the fallback.
var ContentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	"#content",
	"#main-content",
	".content",
	".post-content",
	".entry-content",
	".article-body",
	".post",
}

// StripSelectors lists boilerplate removed from the container before
// flattening.
var StripSelectors = []string{
	"script",
	"style",
	"noscript",
	"iframe",
	"svg",
	"template",
	"nav",
	"header",
	"footer",
	"aside",
	"form",
	`[role="navigation"]`,
	`[role="banner"]`,
	`[role="contentinfo"]`,
	`[aria-hidden="true"]`,
	".ad",
	".ads",
	".advertisement",
	".sidebar",
	".comments",
	"#comments",
}

// blockElements get a line break on either side when flattened.
var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "dd": true, "div": true,
	"dl": true, "dt": true, "figcaption": true, "figure": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "hr": true,
	"li": true, "main": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tr": true, "ul": true, "body": true,
}

// Pre-compile regex patterns to avoid recompilation overhead
var (
	multiSpacePattern   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
)

// =============================================================================
// RESULT
// =============================================================================

// Result is the outcome of extracting one document.
type Result struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	ContentLength int    `json:"contentLength"`

	// Error is set when extraction failed. Content is empty in that case.
	Error string `json:"error,omitempty"`

	// Placeholder marks a substituted result for a tab that could not be read.
	Placeholder bool `json:"placeholder,omitempty"`

	// Truncated is set when Content was cut at MaxContentLength.
	Truncated bool `json:"truncated,omitempty"`
}

// OK reports whether the result carries real page content.
func (r Result) OK() bool {
	return r.Error == "" && !r.Placeholder
}

// Failed builds a structured error result.
func Failed(title, pageURL string, err error) Result {
	return Result{Title: title, URL: pageURL, Error: err.Error()}
}

// =============================================================================
// EXTRACTION
// =============================================================================

// Extract parses r as HTML and extracts its main text. It never panics; any
// failure is reported through Result.Error.
func Extract(r io.Reader, pageURL string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{URL: pageURL, Error: fmt.Sprintf("extraction failed: %v", p)}
		}
	}()

	if r == nil {
		return Result{URL: pageURL, Error: "extraction failed: no document"}
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Failed("", pageURL, fmt.Errorf("parse document: %w", err))
	}
	return ExtractDocument(doc, pageURL)
}

// ExtractHTML is Extract over a string.
func ExtractHTML(document, pageURL string) Result {
	return Extract(strings.NewReader(document), pageURL)
}

// ExtractDocument extracts the main text of an already parsed document.
func ExtractDocument(doc *goquery.Document, pageURL string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{URL: pageURL, Error: fmt.Sprintf("extraction failed: %v", p)}
		}
	}()

	if doc == nil {
		return Result{URL: pageURL, Error: "extraction failed: no document"}
	}

	title := documentTitle(doc)

	// Work on a detached copy so the caller's tree is untouched.
	container := selectContainer(doc).Clone()
	for _, sel := range StripSelectors {
		container.Find(sel).Remove()
	}

	var sb strings.Builder
	for _, n := range container.Nodes {
		flatten(n, &sb)
	}

	content := Normalize(sb.String())
	content, truncated := Truncate(content, MaxContentLength)

	return Result{
		Title:         title,
		URL:           pageURL,
		Content:       content,
		ContentLength: utf8.RuneCountInString(content),
		Truncated:     truncated,
	}
}

// selectContainer returns the first match from ContentSelectors, or body.
func selectContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range ContentSelectors {
		if match := doc.Find(sel).First(); match.Length() > 0 {
			return match
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

func documentTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// flatten writes the text of n, breaking lines around block elements.
// Comment nodes are dropped.
func flatten(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if n.Data == "br" {
			sb.WriteString("\n")
			return
		}
		if n.Data == "td" || n.Data == "th" {
			sb.WriteString(" ")
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(c, sb)
	}
	if block {
		sb.WriteString("\n")
	}
}

// =============================================================================
// TEXT HELPERS
// =============================================================================

// Normalize collapses whitespace runs to single spaces, trims every line and
// leaves at most one blank line between paragraphs.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = multiSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return norm.NFC.String(strings.TrimSpace(s))
}

// Truncate keeps the first max characters of s and appends TruncationMarker
// when anything was dropped.
func Truncate(s string, max int) (string, bool) {
	if utf8.RuneCountInString(s) <= max {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:max]) + TruncationMarker, true
}
