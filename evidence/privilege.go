package evidence

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultPrivilegeLevelPath exposes the guest's current VMPL on AMD SEV-SNP.
const DefaultPrivilegeLevelPath = "/sys/devices/system/cpu/sev/vmpl"

// MaxPrivilegeLevel is the highest VMPL defined by SEV-SNP.
const MaxPrivilegeLevel = 3

// PrivilegeLevelSource yields the caller's current isolation level.
type PrivilegeLevelSource interface {
	PrivilegeLevel() (uint, error)
}

// FilePrivilegeLevel reads the privilege level from a sysfs-style file.
type FilePrivilegeLevel struct {
	Path string
}

func (f FilePrivilegeLevel) PrivilegeLevel() (uint, error) {
	path := f.Path
	if path == "" {
		path = DefaultPrivilegeLevelPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("could not read privilege level: %w", err)
	}

	return parsePrivilegeLevel(string(data))
}

// StaticPrivilegeLevel always returns the same level.
type StaticPrivilegeLevel uint

func (s StaticPrivilegeLevel) PrivilegeLevel() (uint, error) {
	if uint(s) > MaxPrivilegeLevel {
		return 0, fmt.Errorf("privilege level %d out of range", uint(s))
	}
	return uint(s), nil
}

func parsePrivilegeLevel(raw string) (uint, error) {
	level, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid privilege level %q: %w", strings.TrimSpace(raw), err)
	}
	if level > MaxPrivilegeLevel {
		return 0, fmt.Errorf("privilege level %d out of range", level)
	}
	return uint(level), nil
}
