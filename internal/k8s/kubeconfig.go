package k8s

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"unicode/utf8"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"github.com/example/kanrigate/internal/logging"
)

// KubeconfigRequest holds the inputs of a generated kubeconfig.
type KubeconfigRequest struct {
	Username            string
	Namespace           string
	ClusterName         string
	ControlPlaneAddress string
}

// ContextName returns <username>-<namespace>@<clusterName>.
func (r KubeconfigRequest) ContextName() string {
	return fmt.Sprintf("%s-%s@%s", r.Username, r.Namespace, r.ClusterName)
}

// Kubeconfig is the document handed to end users. Field names follow the
// kubeconfig file format and must not change.
type Kubeconfig struct {
	APIVersion     string         `json:"apiVersion"`
	Kind           string         `json:"kind"`
	Clusters       []NamedCluster `json:"clusters"`
	Contexts       []NamedContext `json:"contexts"`
	CurrentContext string         `json:"current-context"`
	Users          []NamedUser    `json:"users"`
}

// NamedCluster is one entry of Kubeconfig.Clusters.
type NamedCluster struct {
	Name    string        `json:"name"`
	Cluster ClusterConfig `json:"cluster"`
}

// ClusterConfig holds the API server endpoint and its CA bundle.
type ClusterConfig struct {
	CertificateAuthorityData string `json:"certificate-authority-data"`
	Server                   string `json:"server"`
}

// NamedContext is one entry of Kubeconfig.Contexts.
type NamedContext struct {
	Name    string        `json:"name"`
	Context ContextConfig `json:"context"`
}

// ContextConfig ties a cluster, a user and a default namespace together.
type ContextConfig struct {
	Cluster   string `json:"cluster"`
	Namespace string `json:"namespace"`
	User      string `json:"user"`
}

// NamedUser is one entry of Kubeconfig.Users.
type NamedUser struct {
	Name string     `json:"name"`
	User UserConfig `json:"user"`
}

// UserConfig holds the bearer token.
type UserConfig struct {
	Token string `json:"token"`
}

// GenerateKubeconfig renders a kubeconfig that authenticates as the identity
// through its credential secret. The secret is only read.
func (o *Ops) GenerateKubeconfig(ctx context.Context, req KubeconfigRequest) ([]byte, error) {
	if err := validateUsername(req.Username); err != nil {
		return nil, newError(opGenerateKubeconfig, resourceSecret, req.Username, ErrInvalidArgument, err)
	}
	if err := validateNamespace(req.Namespace); err != nil {
		return nil, newError(opGenerateKubeconfig, resourceSecret, req.Username, ErrInvalidArgument, err)
	}

	secrets, err := o.findCredentials(ctx, opGenerateKubeconfig, req.Username)
	if err != nil {
		return nil, err
	}
	if len(secrets) == 0 {
		return nil, newError(opGenerateKubeconfig, resourceSecret, req.Username, ErrNotFound,
			fmt.Errorf("no credential secret for user %s in namespace %s", req.Username, o.credentialNamespace))
	}

	cfg, err := BuildKubeconfig(&secrets[0], req)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, newError(opGenerateKubeconfig, resourceSecret, secrets[0].Name, ErrEncoding, err)
	}
	o.logger.Debug("kubeconfig generated",
		logging.Operation(opGenerateKubeconfig),
		logging.Username(req.Username),
		logging.Namespace(req.Namespace),
		logging.Cluster(req.ClusterName),
		logging.Host(req.ControlPlaneAddress),
		slog.String("token", logging.SanitizeToken(cfg.Users[0].User.Token)))
	return out, nil
}

// BuildKubeconfig derives a Kubeconfig from a credential secret. It performs
// no I/O. A token or CA that is present but empty has not been populated by
// the token controller yet and counts as malformed.
func BuildKubeconfig(secret *corev1.Secret, req KubeconfigRequest) (*Kubeconfig, error) {
	token, err := credentialField(secret, TokenKey)
	if err != nil {
		return nil, err
	}
	caCert, err := credentialField(secret, CACertKey)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(token) {
		return nil, newError(opGenerateKubeconfig, resourceSecret, secret.Name, ErrEncoding,
			fmt.Errorf("%q is not valid UTF-8", TokenKey))
	}

	contextName := req.ContextName()
	return &Kubeconfig{
		APIVersion: "v1",
		Kind:       "Config",
		Clusters: []NamedCluster{{
			Name: req.ClusterName,
			Cluster: ClusterConfig{
				CertificateAuthorityData: base64.StdEncoding.EncodeToString(caCert),
				Server:                   req.ControlPlaneAddress,
			},
		}},
		Contexts: []NamedContext{{
			Name: contextName,
			Context: ContextConfig{
				Cluster:   req.ClusterName,
				Namespace: req.Namespace,
				User:      req.Username,
			},
		}},
		CurrentContext: contextName,
		Users: []NamedUser{{
			Name: req.Username,
			User: UserConfig{Token: string(token)},
		}},
	}, nil
}

func credentialField(secret *corev1.Secret, key string) ([]byte, error) {
	value, ok := secret.Data[key]
	if !ok {
		return nil, newError(opGenerateKubeconfig, resourceSecret, secret.Name, ErrMalformedCredential,
			fmt.Errorf("missing %q", key))
	}
	if len(value) == 0 {
		return nil, newError(opGenerateKubeconfig, resourceSecret, secret.Name, ErrMalformedCredential,
			fmt.Errorf("%q is empty", key))
	}
	return value, nil
}
