// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// This package is the model relay: it lists installed models, probes
// liveness and performs streamed text generation against /api/generate.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - ModelDescriptor: {name, size} view of an installed model
//   - Stream: iterator over a newline-delimited generation response
//   - Fragment: one incremental piece of generated text
//   - GenerateResult: accumulated text and model identity
//   - ClientError: typed error with an ErrorType for handling
//
// # Usage
//
// Generate with a per-fragment callback:
//
//	client := ollama.NewClient()
//	res, err := client.Generate(ctx, "llama3.2", prompt, func(s string) {
//	    fmt.Print(s)
//	})
//
// Or drive the stream directly:
//
//	stream, err := client.GenerateStream(ctx, "llama3.2", prompt)
//	defer stream.Close()
//	for {
//	    frag, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    fmt.Print(frag.Text)
//	}
//
// Malformed records in the stream are skipped and logged; a stream that ends
// without a completion record still yields the accumulated text.
package ollama
