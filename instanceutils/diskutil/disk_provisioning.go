package diskutil

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/argon2"
)

// LUKSTokenIDDiskLabel is the token ID used for storing disk labels in LUKS metadata.
const LUKSTokenIDDiskLabel = "1"

// Argon2id parameters for disk passphrase derivation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

var diskKeySaltPrefix = []byte("TAS-DISK-KEY-")

// DiskConfig contains configuration for encrypted disk operations.
type DiskConfig struct {
	DevicePath   string
	MountPoint   string
	MapperName   string
	MapperDevice string
}

// NewDiskConfig creates a new DiskConfig with default values for the mapper device.
func NewDiskConfig(devicePath, mountPoint, mapperName string) DiskConfig {
	return DiskConfig{
		DevicePath:   devicePath,
		MountPoint:   mountPoint,
		MapperName:   mapperName,
		MapperDevice: "/dev/mapper/" + mapperName,
	}
}

// DiskLabel is a unique identifier for a disk used in key derivation.
type DiskLabel [8]byte

// String returns the disk label as a hex string.
func (d DiskLabel) String() string {
	return hex.EncodeToString(d[:])
}

// DiskLabelFromString creates a DiskLabel from a hex string.
func DiskLabelFromString(data string) (DiskLabel, error) {
	labelBytes, err := hex.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return DiskLabel{}, err
	}
	if len(labelBytes) != len(DiskLabel{}) {
		return DiskLabel{}, errors.New("invalid disk label length")
	}

	var label DiskLabel
	copy(label[:], labelBytes)
	return label, nil
}

// RandomDiskLabel generates a random disk label.
func RandomDiskLabel() (DiskLabel, error) {
	var diskLabel DiskLabel
	if _, err := rand.Read(diskLabel[:]); err != nil {
		return DiskLabel{}, err
	}
	return diskLabel, nil
}

// DeriveDiskKey derives the LUKS passphrase for a disk from the provisioned
// secret with Argon2id, salted with the disk label. The result is hex encoded
// so it can be passed to cryptsetup on stdin.
func DeriveDiskKey(diskLabel DiskLabel, secret []byte) string {
	salt := append(bytes.Clone(diskKeySaltPrefix), diskLabel[:]...)
	key := argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	defer clear(key)
	return hex.EncodeToString(key)
}

// LUKSToken represents a LUKS token structure for metadata.
type LUKSToken struct {
	Type     string            `json:"type"`
	Keyslots []string          `json:"keyslots"`
	UserData map[string]string `json:"user_data"`
}

// runCommand executes an external tool. Replaced in tests.
var runCommand = func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// mountsFile lists mounted filesystems.
var mountsFile = "/proc/mounts"

// DevicePathForGlob finds a device path matching the provided glob pattern.
func DevicePathForGlob(deviceGlob string) (string, error) {
	devices, err := filepath.Glob(deviceGlob)
	if err != nil {
		return "", err
	} else if len(devices) == 0 {
		return "", errors.New("no devices matched")
	}
	return devices[0], nil
}

// IsLUKS checks if a device is formatted with LUKS.
func IsLUKS(ctx context.Context, diskConfig DiskConfig) bool {
	_, err := runCommand(ctx, "", "cryptsetup", "isLuks", diskConfig.DevicePath)
	return err == nil
}

// SetupNewDisk formats, opens and mounts a new encrypted disk.
func SetupNewDisk(ctx context.Context, diskConfig DiskConfig, passphrase string) error {
	if _, err := runCommand(ctx, passphrase, "cryptsetup", "luksFormat", "--type", "luks2", "-q", diskConfig.DevicePath); err != nil {
		return fmt.Errorf("could not format disk: %w", err)
	}

	if _, err := runCommand(ctx, passphrase, "cryptsetup", "open", diskConfig.DevicePath, diskConfig.MapperName); err != nil {
		return fmt.Errorf("could not open LUKS device: %w", err)
	}

	if _, err := runCommand(ctx, "", "mkfs.ext4", "-q", diskConfig.MapperDevice); err != nil {
		_, _ = runCommand(ctx, "", "cryptsetup", "close", diskConfig.MapperName)
		return fmt.Errorf("could not create filesystem: %w", err)
	}

	return mount(ctx, diskConfig)
}

// MountExistingDisk opens and mounts an already formatted LUKS-encrypted disk.
func MountExistingDisk(ctx context.Context, diskConfig DiskConfig, passphrase string) error {
	if _, err := runCommand(ctx, passphrase, "cryptsetup", "open", diskConfig.DevicePath, diskConfig.MapperName); err != nil {
		return fmt.Errorf("could not open LUKS device: %w", err)
	}

	return mount(ctx, diskConfig)
}

func mount(ctx context.Context, diskConfig DiskConfig) error {
	if err := os.MkdirAll(diskConfig.MountPoint, 0755); err != nil {
		_, _ = runCommand(ctx, "", "cryptsetup", "close", diskConfig.MapperName)
		return fmt.Errorf("could not create mount point: %w", err)
	}
	if _, err := runCommand(ctx, "", "mount", diskConfig.MapperDevice, diskConfig.MountPoint); err != nil {
		_, _ = runCommand(ctx, "", "cryptsetup", "close", diskConfig.MapperName)
		return fmt.Errorf("could not mount filesystem: %w", err)
	}
	return nil
}

// WriteMetadataToLUKS stores metadata as a LUKS token.
func WriteMetadataToLUKS(ctx context.Context, diskConfig DiskConfig, tokenID, data string) error {
	tokenJSON, err := json.Marshal(LUKSToken{
		Type:     "user",
		Keyslots: []string{},
		UserData: map[string]string{
			"metadata": data,
		},
	})
	if err != nil {
		return err
	}

	_, err = runCommand(ctx, string(tokenJSON), "cryptsetup", "token", "import", "--token-id", tokenID, diskConfig.DevicePath)
	return err
}

// ReadMetadataFromLUKS retrieves metadata from a LUKS token.
func ReadMetadataFromLUKS(ctx context.Context, diskConfig DiskConfig, tokenID string) (string, error) {
	output, err := runCommand(ctx, "", "cryptsetup", "token", "export", "--token-id", tokenID, diskConfig.DevicePath)
	if err != nil {
		return "", fmt.Errorf("could not export LUKS token: %w", err)
	}

	var token LUKSToken
	if err := json.Unmarshal(output, &token); err != nil {
		return "", fmt.Errorf("could not unmarshal LUKS token: %w", err)
	}

	data, ok := token.UserData["metadata"]
	if !ok {
		return "", errors.New("luks token metadata is empty")
	}

	return data, nil
}

// IsMounted checks if a mountpoint is currently mounted.
func IsMounted(diskConfig DiskConfig) bool {
	data, err := os.ReadFile(mountsFile)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), " "+diskConfig.MountPoint+" ")
}

// CleanupMount unmounts and closes the encrypted device.
func CleanupMount(ctx context.Context, diskConfig DiskConfig) {
	_, _ = runCommand(ctx, "", "umount", diskConfig.MountPoint)
	_, _ = runCommand(ctx, "", "cryptsetup", "close", diskConfig.MapperName)
}

// ProvisionNewDisk formats a new disk with a passphrase derived from secret
// and records the disk label in the LUKS header.
func ProvisionNewDisk(ctx context.Context, diskConfig DiskConfig, secret []byte) (DiskLabel, error) {
	diskLabel, err := RandomDiskLabel()
	if err != nil {
		return DiskLabel{}, fmt.Errorf("could not generate random disk label: %w", err)
	}

	if err := SetupNewDisk(ctx, diskConfig, DeriveDiskKey(diskLabel, secret)); err != nil {
		return DiskLabel{}, fmt.Errorf("disk setup failed: %w", err)
	}

	if err := WriteMetadataToLUKS(ctx, diskConfig, LUKSTokenIDDiskLabel, diskLabel.String()); err != nil {
		CleanupMount(ctx, diskConfig)
		return DiskLabel{}, fmt.Errorf("failed to write metadata to LUKS: %w", err)
	}

	return diskLabel, nil
}

// MountProvisionedDisk mounts a disk previously provisioned with the same secret.
func MountProvisionedDisk(ctx context.Context, diskConfig DiskConfig, secret []byte) (DiskLabel, error) {
	diskLabelString, err := ReadMetadataFromLUKS(ctx, diskConfig, LUKSTokenIDDiskLabel)
	if err != nil {
		return DiskLabel{}, fmt.Errorf("failed to read metadata from LUKS: %w", err)
	}

	diskLabel, err := DiskLabelFromString(diskLabelString)
	if err != nil {
		return DiskLabel{}, fmt.Errorf("failed to parse disk label: %w", err)
	}

	if err := MountExistingDisk(ctx, diskConfig, DeriveDiskKey(diskLabel, secret)); err != nil {
		return DiskLabel{}, fmt.Errorf("disk mounting failed: %w", err)
	}

	return diskLabel, nil
}

// ProvisionOrMountDisk mounts the disk if it is already LUKS formatted and
// provisions it otherwise. The boolean result reports whether the disk was new.
func ProvisionOrMountDisk(ctx context.Context, diskConfig DiskConfig, secret []byte) (DiskLabel, bool, error) {
	if IsMounted(diskConfig) {
		return DiskLabel{}, false, errors.New("disk already mounted")
	}

	if IsLUKS(ctx, diskConfig) {
		diskLabel, err := MountProvisionedDisk(ctx, diskConfig, secret)
		return diskLabel, false, err
	}

	diskLabel, err := ProvisionNewDisk(ctx, diskConfig, secret)
	return diskLabel, true, err
}
