package provisioner

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   []byte
		expected string
	}{
		{"utf8", []byte("top-secret"), "top-secret\n"},
		{"multibyte", []byte("sécret"), "sécret\n"},
		{"invalid bytes", []byte{'a', 0xff, 0xfe, 'b'}, "a�b\n"},
		{"truncated sequence", []byte{'x', 0xe2, 0x82}, "x�\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteSecret(&buf, tt.secret))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestWriteSecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")

	require.NoError(t, WriteSecretFile(path, []byte{0x00, 0xff, 'k'}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 'k'}, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, WriteSecretFile("", []byte("x")))
	assert.Error(t, WriteSecretFile(filepath.Join(t.TempDir(), "missing", "secret"), []byte("x")))
}
