/*
Package broker implements both sides of the key broker REST API.

Client is the agent's view of the broker and implements interfaces.Broker:

	client, err := broker.NewClient(broker.ClientConfig{
		URI:          "https://tas.example:5001",
		APIKey:       apiKey,
		RootCertPath: "/etc/tas_agent/root.pem",
	})

Handler serves the same API for development. It issues single-use nonces,
checks the API key and request shape, fetches the secret from a
SecretStore and seals it to the caller's wrapping key. It does not verify
attestation evidence and must not be used to protect real secrets.

MockBroker is a testify mock of interfaces.Broker.
*/
package broker
