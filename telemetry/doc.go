// Package telemetry is the in-process telemetry engine of an HTTP service.
//
// An Engine owns one event log sink, one request aggregate, the growth
// controller that keeps the aggregate bounded and the retention loops. It is
// constructed explicitly and handed to the request-handling code; there is no
// package-level state.
//
// Every Record* method is safe for concurrent use, never returns an error and
// never panics: write failures are reported to the fallback logger and the
// event is dropped.
//
//	cfg, _ := config.Load("telemetry.yaml")
//	eng, err := telemetry.New(cfg)
//	if err != nil {
//	    return err
//	}
//	eng.Start(ctx)
//	defer eng.Close(context.Background())
//
//	r := chi.NewRouter()
//	r.Use(eng.Middleware)
//	eng.Mount(r)
package telemetry
