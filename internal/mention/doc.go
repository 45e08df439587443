// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mention implements @mention detection, autocomplete and the
// @"Title" wire format for referencing browser tabs in a query.
//
// # Key Types
//
//   - Segment: literal text or a tab reference
//   - Editor: input text, cursor and suggestion list state machine
//   - Active: the mention currently being typed
//
// # Usage
//
//	ed := mention.NewEditor()
//	ed.SetSnapshot(tabList)
//	ed.Insert("compare @do")
//	if ed.Open() {
//	    ed.HandleKey(mention.KeyTab) // commits @"Docs "
//	}
//	query, mentioned := ed.Submit()
//
// Encode and Decode convert between segments and wire text. Decode drops
// references whose title is not in the snapshot, so
// Decode(Encode(s), snapshot) == s whenever every reference resolves.
package mention
