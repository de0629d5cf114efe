/*
Package httpserver serves a KVStore over HTTP.

Every key operation is addressed by a single path segment. Keys are
percent-decoded, so any byte sequence can be used as a key.

# Endpoints

  - GET /keys/{key} - 200 with the value, 404 "no <key> key" when absent
  - POST /keys/{key} - store the request body as the value
  - DELETE /keys/{key} - remove the key, succeeding when it is absent
  - POST /flush - make all acknowledged writes durable
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready
  - /debug/* - pprof, when enabled

Store failures other than absence answer 500 with "internal error: <err>".

# Middleware

Requests pass through CORS (any origin), request logging, response
compression and a panic guard. A panic inside a handler is logged with its
stack and terminates the process, since a store that panicked mid-write can
no longer be trusted.

# Example Usage

	store, err := storage.NewKVStoreFactory(logger).KVStoreFromString(ctx, "file:///var/lib/kv")
	if err != nil {
		return err
	}

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               "0.0.0.0:7777",
		MetricsAddr:              "127.0.0.1:8090",
		Log:                      logger,
		GracefulShutdownDuration: 30 * time.Second,
	}

	srv, err := httpserver.New(cfg, httpserver.NewHandler(store, logger))
	if err != nil {
		return err
	}
	if err := srv.RunInBackground(); err != nil {
		return err
	}
	defer srv.Shutdown()
*/
package httpserver
