// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package extract turns an HTML document into bounded plain text.
//
// The extractor picks the first element matching ContentSelectors (falling
// back to body), strips StripSelectors from a detached copy, flattens the
// remainder to text and caps it at MaxContentLength characters.
//
// # Usage
//
//	res := extract.ExtractHTML(page, "https://example.com/post")
//	if !res.OK() {
//	    log.Println(res.Error)
//	}
//	fmt.Println(res.Title, res.ContentLength)
package extract
