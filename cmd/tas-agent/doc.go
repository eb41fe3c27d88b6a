/*
Command tas-agent provisions a secret into a confidential VM.

It generates an ephemeral RSA wrapping key, fetches a nonce from the
attestation broker, binds the nonce into a hardware attestation report
through configfs-tsm, submits the report and wrapping key, and decrypts the
returned secret. The secret is written to stdout by default; logs go to stderr.

Configuration is read from /etc/tas_agent/config (override with
TAS_AGENT_CONFIG), a dotenv file with:

	TAS_SERVER_URI=https://tas.example:5001
	TAS_SERVER_API_KEY=...
	TAS_KEY_ID=disk-key
	TAS_SERVER_ROOT_CERT=/etc/tas_agent/root.pem

Examples:

	tas-agent -d
	tas-agent provision --output luks --luks-device '/dev/disk/by-id/*persistent*'
	tas-agent evidence --nonce "$(head -c 32 /dev/urandom | xxd -p -c 64)" --inspect
	tas-agent version
*/
package main
