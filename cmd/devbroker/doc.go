/*
Command devbroker serves the key broker API for local development and tests.

It hands out single-use nonces, checks the API key and request shape, and
releases secrets from the configured storage sealed to the agent's wrapping
key. Attestation evidence is NOT verified.

	devbroker store --storage file:///tmp/secrets --key-id disk-key --secret-file secret.txt
	TAS_SERVER_API_KEY=dev devbroker serve --storage file:///tmp/secrets --self-signed
*/
package main
