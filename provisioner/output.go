package provisioner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Output sink names accepted by the agent.
const (
	OutputStdout = "stdout"
	OutputFile   = "file"
	OutputLUKS   = "luks"
)

// WriteSecret writes secret as text followed by a newline. Invalid UTF-8
// sequences are replaced with U+FFFD.
func WriteSecret(w io.Writer, secret []byte) error {
	_, err := io.WriteString(w, strings.ToValidUTF8(string(secret), "�")+"\n")
	return err
}

// WriteSecretFile writes the raw secret to path with owner-only permissions.
// The file is written next to its destination and renamed into place.
func WriteSecretFile(path string, secret []byte) error {
	if path == "" {
		return fmt.Errorf("output file path is required")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("could not restrict output file: %w", err)
	}
	if _, err := tmp.Write(secret); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write output file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not move output file into place: %w", err)
	}
	return nil
}
