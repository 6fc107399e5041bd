// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

// Package client provides the HTTP client for the Subconscious run API.
//
// The client submits tasks to a remote reasoning engine, polls or streams
// their progress, and normalizes results and errors into the types of the
// root subconscious package.
//
// # Basic Usage
//
//	ctx := context.Background()
//	c, err := client.New(
//		client.WithBaseURL("https://api.subconscious.dev/v1"),
//		client.WithAPIKey(os.Getenv("SUBCONSCIOUS_API_KEY")),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	run, err := c.CreateRun(ctx, &subconscious.RunRequest{
//		Engine: "tim-large",
//		Input:  "How many r's are in strawberry?",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	run, err = c.WaitForRun(ctx, run.ID, nil)
//
// # Streaming
//
// StreamRun returns a lazy, single-pass event stream:
//
//	stream, err := c.StreamRun(ctx, req)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer stream.Close()
//
//	for {
//		event, err := stream.Next(ctx)
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			log.Fatal(err)
//		}
//		switch ev := event.(type) {
//		case *subconscious.ReasoningEvent:
//			// intermediate reasoning step
//		case *subconscious.RunCompletedEvent:
//			fmt.Println(ev.Result.Answer)
//		}
//	}
//	final := stream.Run()
//
// The wire grammar is selected at construction time with WithProtocol:
// ProtocolRich decodes full typed run events, ProtocolDelta decodes the
// OpenAI-compatible incremental-text shape emitted by legacy deployments.
// The two grammars are mutually exclusive; a deployment speaks exactly one.
package client
