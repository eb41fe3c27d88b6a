/*
Package httpserver hosts HTTP API handlers behind a chi router.

Every request is logged with the flashbots httplogger middleware and tagged
with a request id. Besides the mounted API routes the server exposes:

	GET /livez    liveness, always 200
	GET /readyz   200 while ready, 503 while draining
	GET /drain    stop accepting API requests
	GET /undrain  resume accepting API requests

While draining, API routes answer 503 so load balancers move traffic away
before Shutdown stops the listener.

Usage:

	srv, err := httpserver.New(&api.HTTPServerConfig{
		ListenAddr: ":8080",
		Log:        logger,
	}, brokerHandler)
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
