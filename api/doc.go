/*
Package api defines the wire types of the key broker REST API.

Every request carries the X-API-KEY header. Endpoints:

	GET  /version          -> VersionResponse
	GET  /kb/v0/get_nonce  -> NonceResponse
	POST /kb/v0/get_secret SecretKeyRequest -> interfaces.SecretEnvelope

The broker subpackage holds the agent's HTTP client and a development broker
handler that serves the same API.
*/
package api
