// Package diskutil unlocks LUKS2-encrypted persistent storage with a provisioned secret.
//
// The LUKS passphrase is never the secret itself. Each disk carries a random
// label in a LUKS token, and the passphrase is derived from the secret and the
// label with Argon2id, so one secret can protect many disks with distinct keys.
//
// Basic usage:
//
//	diskConfig := diskutil.NewDiskConfig("/dev/vdb", "/persistent", "cryptdisk")
//
//	// Provision a new disk or mount an existing one
//	diskLabel, isNew, err := diskutil.ProvisionOrMountDisk(ctx, diskConfig, secret)
//	if err != nil {
//		log.Fatalf("Failed to provision/mount disk: %v", err)
//	}
//
//	// Clean up when done
//	diskutil.CleanupMount(ctx, diskConfig)
package diskutil
