package k8s

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: test
  cluster:
    server: https://test-cluster.example.com:6443
contexts:
- name: test
  context:
    cluster: test
    user: test
current-context: test
users:
- name: test
  user:
    token: test-token
`

func TestNewClient(t *testing.T) {
	client, err := NewClient([]byte(testKubeconfig))
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClient([]byte("not: [valid"))
	assert.Error(t, err)
}

func TestNewClientFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))

	client, err := NewClientFromPath(path)
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClientFromPath(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNamespaceFromFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "namespace")
	require.NoError(t, os.WriteFile(path, []byte("platform\n"), 0o600))
	assert.Equal(t, "platform", namespaceFromFile(path))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("  "), 0o600))
	assert.Equal(t, DefaultCredentialNamespace, namespaceFromFile(empty))

	assert.Equal(t, DefaultCredentialNamespace, namespaceFromFile(filepath.Join(dir, "missing")))
}
