package k8s

import (
	"fmt"
	"os"
	"strings"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	// serviceAccountNamespaceFile holds the namespace of the pod we run in.
	serviceAccountNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

	// DefaultCredentialNamespace is used outside a cluster when nothing is configured.
	DefaultCredentialNamespace = "kanrigate"

	// requestTimeout bounds every call made by the clientset.
	requestTimeout = 30 * time.Second
)

// NewClient builds a clientset from a kubeconfig document held in memory.
func NewClient(kubeconfig []byte) (*kubernetes.Clientset, error) {
	cfg, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build REST config: %w", err)
	}
	return newClientset(cfg)
}

// NewClientFromPath builds a clientset from a kubeconfig file. An empty path
// uses the in-cluster configuration, falling back to the default loading
// rules ($KUBECONFIG, ~/.kube/config) when not running in a pod.
func NewClientFromPath(path string) (*kubernetes.Clientset, error) {
	cfg, err := loadRESTConfig(path)
	if err != nil {
		return nil, err
	}
	return newClientset(cfg)
}

func loadRESTConfig(path string) (*rest.Config, error) {
	if path != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig %s: %w", path, err)
		}
		return cfg, nil
	}

	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
	cfg, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster configuration: %w", err)
	}
	return cfg, nil
}

func newClientset(cfg *rest.Config) (*kubernetes.Clientset, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = requestTimeout
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return client, nil
}

// CurrentNamespace returns the namespace this process runs in, or
// DefaultCredentialNamespace outside a cluster.
func CurrentNamespace() string {
	return namespaceFromFile(serviceAccountNamespaceFile)
}

func namespaceFromFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultCredentialNamespace
	}
	ns := strings.TrimSpace(string(data))
	if ns == "" {
		return DefaultCredentialNamespace
	}
	return ns
}
