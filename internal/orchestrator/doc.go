// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator composes prompts from queries and tab content and
// relays them to the model.
//
// Context policy, in priority order:
//
//  1. Mentioned tabs: extracted concurrently, placed in the prompt in
//     mention order, one "=== Tab: <title> ===" block each.
//  2. The active tab, when IncludePageContent is set. If it cannot be read
//     the prompt carries a note instead and the query proceeds.
//  3. The bare question.
//
// # Key Types
//
//   - Orchestrator: owns a session.State and runs queries against it
//   - Query, Answer: request and result of one exchange
//   - Event, Notifier: streamChunk / streamComplete / streamError delivery
//
// # Usage
//
//	o := orchestrator.New(client, directory, orchestrator.WithStore(store))
//	if err := o.Start(ctx); err != nil {
//	    return err
//	}
//	q := o.ParseQuery(`Summarize @"Docs"`, "", false)
//	answer, err := o.HandleStreamingQuery(ctx, q, msgID, notifier)
package orchestrator
