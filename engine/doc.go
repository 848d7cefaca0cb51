// Package engine wires the orchestration subsystems together and provides
// the application-level façade for dispatching and tracking work.
//
// The engine package exists to break a fundamental import cycle: the root
// orchestrator package defines Entity (imported by request, orchestration,
// worker, etc.) and therefore cannot import those packages back. Engine
// sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	eng, err := engine.New(
//	    engine.WithStore(pgStore),
//	    engine.WithPublisher(broker),
//	    engine.WithLogger(logger),
//	    engine.WithCoordinatorConfig(coordinator.Config{
//	        WorkerType:     worker.TypeAssistant,
//	        MaxConcurrency: 8,
//	        RateLimit:      50,
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	defer eng.Stop(ctx)
//
// # Dispatching Work
//
//	// Single request, one worker.
//	resp, err := eng.Dispatch(ctx, req)
//
//	// Multi-worker workflow; the saga runner tracks it to completion.
//	oreq, err := eng.Submit(ctx, userID, workflow.TypeResumeBuild, data,
//	    orchestration.WithIdempotencyKey(key),
//	)
//
// # Worker Registry
//
//	eng.RegisterWorker(ctx, w)
//	eng.Heartbeat(ctx, w.ID)
//
// # Dead Letters
//
//	entries, err := eng.DeadLetters(ctx, deadletter.ListOpts{Limit: 50})
//	a, err := eng.Replay(ctx, entries[0].ID)
//
// # Options
//
//   - [WithStore] — set the persistence backend (required)
//   - [WithPublisher] — set the message bus (required)
//   - [WithExtension] — register a lifecycle extension
//   - [WithMiddleware] — add a middleware to the dispatch chain
//   - [WithBackoff] — set the retry backoff strategy
//   - [WithSelector] — override worker selection
//   - [WithCoordinatorConfig] — per-worker-type concurrency and rate limits
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
