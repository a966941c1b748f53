// Package metrics exposes Prometheus metrics for the middleware server.
//
// A Metrics value owns its own registry so that several servers can run in
// one process (or one test binary) without colliding on the default
// registry. All recording methods are safe on a nil *Metrics, which turns
// instrumentation off.
//
//	m := metrics.New()
//	http.Handle("/metrics", m.Handler())
//	srv := middleware.NewServer(mgr, middleware.Config{Metrics: m})
package metrics
