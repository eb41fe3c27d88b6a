/*
Package storage provides secret stores for the development broker.

Every backend implements interfaces.SecretStore and addresses secrets by key
ID. Key IDs are validated before they are turned into a file name, object key
or Vault path.

Backends are created from location URIs:

	file:///var/lib/devbroker/secrets
	s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=eu-west-1&endpoint=http://minio:9000&path_style=true
	vault://vault.example:8200/secret/tas?tls=false

S3 without embedded credentials uses the AWS SDK default credential chain.
Vault uses the token from VAULT_TOKEN and the KV v2 engine; the secret is kept
in the "content" field of the entry.

Several URIs can be combined into a MultiStorageBackend: writes go to every
available backend and reads return the first hit.

	factory := storage.NewStorageBackendFactory(logger)
	store, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
		"file:///var/lib/devbroker/secrets",
		"s3://tas-secrets/dev?region=eu-west-1",
	})
	secret, err := store.Fetch(ctx, "disk-key")
*/
package storage
