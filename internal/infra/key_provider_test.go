package infra

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyProvider(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, dataDir string)
		testFn func(t *testing.T, provider *FileKeyProvider)
	}{
		{
			name: "Key creates key file with correct permissions",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := provider.Key()
				require.NoError(t, err)
				assert.Len(t, key, keySize)

				info, err := os.Stat(provider.keyPath)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			},
		},
		{
			name: "Key returns the same key on later calls",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				first, err := provider.Key()
				require.NoError(t, err)

				second, err := provider.Key()
				require.NoError(t, err)
				assert.Equal(t, first, second)
			},
		},
		{
			name: "Key reads an existing key file",
			setup: func(t *testing.T, dataDir string) {
				key := make([]byte, keySize)
				for i := range key {
					key[i] = byte(i)
				}
				encoded := base64.StdEncoding.EncodeToString(key) + "\n"
				require.NoError(t, os.WriteFile(filepath.Join(dataDir, keyFileName), []byte(encoded), 0600))
			},
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := provider.Key()
				require.NoError(t, err)
				assert.Equal(t, byte(31), key[31])
			},
		},
		{
			name: "Key rejects wrong key size",
			setup: func(t *testing.T, dataDir string) {
				encoded := base64.StdEncoding.EncodeToString([]byte("tooshort"))
				require.NoError(t, os.WriteFile(filepath.Join(dataDir, keyFileName), []byte(encoded), 0600))
			},
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				_, err := provider.Key()
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid key size")
			},
		},
		{
			name: "Key rejects garbage",
			setup: func(t *testing.T, dataDir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dataDir, keyFileName), []byte("!!not base64!!"), 0600))
			},
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				_, err := provider.Key()
				assert.Error(t, err)
			},
		},
		{
			name: "Key creates directory if missing",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				provider.keyPath = filepath.Join(filepath.Dir(provider.keyPath), "sub", "dir", keyFileName)

				_, err := provider.Key()
				require.NoError(t, err)

				_, err = os.Stat(provider.keyPath)
				assert.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir := t.TempDir()
			if tt.setup != nil {
				tt.setup(t, dataDir)
			}
			tt.testFn(t, NewFileKeyProvider(dataDir))
		})
	}
}

func TestGenerateKey(t *testing.T) {
	key1, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key1, 32)

	key2, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2, "keys should be random")
}
