// Package failrag retrieves failure-analysis documentation for a query by
// embedding it and ranking a packaged corpus by cosine similarity.
//
//	engine, _ := failrag.New(ctx,
//	    failrag.WithSnapshot("data/knowledge.db"),
//	    failrag.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	    failrag.WithDefaultModel("gpt-4o"),
//	)
//	defer engine.Close()
//
//	text, _ := engine.Retrieve(ctx, "pod OOMKilled", failrag.QueryFailureAnalysis, logs, failrag.ModeDetailed)
//
// Retrieve never fails on provider or storage errors: it returns an empty
// string so callers can continue without documentation.
package failrag
