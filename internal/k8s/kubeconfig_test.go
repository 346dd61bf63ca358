package k8s

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"
)

func testKubeconfigRequest() KubeconfigRequest {
	return KubeconfigRequest{
		Username:            "bob",
		Namespace:           "team-a",
		ClusterName:         "prod",
		ControlPlaneAddress: "https://10.0.0.1:6443",
	}
}

func TestGenerateKubeconfig(t *testing.T) {
	ctx := context.Background()

	t.Run("renders a loadable kubeconfig", func(t *testing.T) {
		ops, _, auditor := setupTestOps(t, testCredentialSecret("bob-token", "bob", map[string][]byte{
			"token":  []byte("abc"),
			"ca.crt": []byte("CERT"),
		}))

		out, err := ops.GenerateKubeconfig(ctx, testKubeconfigRequest())
		require.NoError(t, err)
		assert.Empty(t, auditor.Entries(), "generation does not mutate")

		cfg, err := clientcmd.Load(out)
		require.NoError(t, err)
		assert.Equal(t, "bob-team-a@prod", cfg.CurrentContext)

		require.Contains(t, cfg.Clusters, "prod")
		assert.Equal(t, "https://10.0.0.1:6443", cfg.Clusters["prod"].Server)
		assert.Equal(t, []byte("CERT"), cfg.Clusters["prod"].CertificateAuthorityData)

		require.Contains(t, cfg.Contexts, "bob-team-a@prod")
		kctx := cfg.Contexts["bob-team-a@prod"]
		assert.Equal(t, "prod", kctx.Cluster)
		assert.Equal(t, "team-a", kctx.Namespace)
		assert.Equal(t, "bob", kctx.AuthInfo)

		require.Contains(t, cfg.AuthInfos, "bob")
		assert.Equal(t, "abc", cfg.AuthInfos["bob"].Token)
	})

	t.Run("document has exactly the kubeconfig top-level keys", func(t *testing.T) {
		ops, _, _ := setupTestOps(t, testCredentialSecret("bob-token", "bob", map[string][]byte{
			"token":  []byte("abc"),
			"ca.crt": []byte("CERT"),
		}))

		out, err := ops.GenerateKubeconfig(ctx, testKubeconfigRequest())
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, yaml.Unmarshal(out, &doc))
		keys := make([]string, 0, len(doc))
		for k := range doc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		assert.Equal(t, []string{"apiVersion", "clusters", "contexts", "current-context", "kind", "users"}, keys)
		assert.Equal(t, "Config", doc["kind"])
		assert.Equal(t, "v1", doc["apiVersion"])
	})

	t.Run("missing credential fails with not found", func(t *testing.T) {
		ops, _, _ := setupTestOps(t, testCredentialSecret("alice-token", "alice", map[string][]byte{
			"token":  []byte("abc"),
			"ca.crt": []byte("CERT"),
		}))

		_, err := ops.GenerateKubeconfig(ctx, testKubeconfigRequest())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("missing token is malformed", func(t *testing.T) {
		ops, _, _ := setupTestOps(t, testCredentialSecret("bob-token", "bob", map[string][]byte{
			"ca.crt": []byte("CERT"),
		}))

		_, err := ops.GenerateKubeconfig(ctx, testKubeconfigRequest())
		assert.True(t, errors.Is(err, ErrMalformedCredential))
	})

	t.Run("missing ca.crt is malformed", func(t *testing.T) {
		ops, _, _ := setupTestOps(t, testCredentialSecret("bob-token", "bob", map[string][]byte{
			"token": []byte("abc"),
		}))

		_, err := ops.GenerateKubeconfig(ctx, testKubeconfigRequest())
		assert.True(t, errors.Is(err, ErrMalformedCredential))
	})

	t.Run("empty token or ca.crt is malformed", func(t *testing.T) {
		for _, data := range []map[string][]byte{
			{"token": {}, "ca.crt": []byte("CERT")},
			{"token": []byte("abc"), "ca.crt": {}},
		} {
			ops, _, _ := setupTestOps(t, testCredentialSecret("bob-token", "bob", data))

			out, err := ops.GenerateKubeconfig(ctx, testKubeconfigRequest())
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, ErrMalformedCredential))
		}
	})

	t.Run("token that is not UTF-8 fails with encoding error", func(t *testing.T) {
		ops, _, _ := setupTestOps(t, testCredentialSecret("bob-token", "bob", map[string][]byte{
			"token":  {0xff, 0xfe, 0xfd},
			"ca.crt": []byte("CERT"),
		}))

		_, err := ops.GenerateKubeconfig(ctx, testKubeconfigRequest())
		assert.True(t, errors.Is(err, ErrEncoding))
	})

	t.Run("invalid namespace is rejected", func(t *testing.T) {
		ops, client, _ := setupTestOps(t)

		req := testKubeconfigRequest()
		req.Namespace = ""
		_, err := ops.GenerateKubeconfig(ctx, req)
		assert.True(t, errors.Is(err, ErrInvalidArgument))
		assert.Empty(t, client.Actions())
	})

	t.Run("secret list failure is returned", func(t *testing.T) {
		ops, client, _ := setupTestOps(t)
		failOn(client, "list", "secrets", "", errBoom)

		_, err := ops.GenerateKubeconfig(ctx, testKubeconfigRequest())
		assert.True(t, errors.Is(err, ErrRemoteUnavailable))
	})
}

func TestBuildKubeconfig(t *testing.T) {
	secret := testCredentialSecret("bob-token", "bob", map[string][]byte{
		"token":  []byte("abc"),
		"ca.crt": []byte("CERT"),
	})

	cfg, err := BuildKubeconfig(secret, testKubeconfigRequest())
	require.NoError(t, err)
	assert.Equal(t, "Q0VSVA==", cfg.Clusters[0].Cluster.CertificateAuthorityData)
	assert.Equal(t, "abc", cfg.Users[0].User.Token)
	assert.Equal(t, cfg.CurrentContext, cfg.Contexts[0].Name)
}
