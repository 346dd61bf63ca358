package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/api/validation/path"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"

	"github.com/example/kanrigate/internal/logging"
	"github.com/example/kanrigate/internal/metrics"
	"github.com/example/kanrigate/internal/naming"
)

// Operation names, used for errors, metrics and audit records.
const (
	opCreateServiceAccount    = "create_service_account"
	opDeleteServiceAccount    = "delete_service_account"
	opListServiceAccounts     = "list_service_accounts"
	opEnsureCredential        = "ensure_credential"
	opRevokeCredentials       = "revoke_credentials"
	opListSecrets             = "list_secrets"
	opCreateRoleBinding       = "create_role_binding"
	opDeleteRoleBinding       = "delete_role_binding"
	opGetRoleBinding          = "get_role_binding"
	opListRoleBindings        = "list_role_bindings"
	opCreateClusterRoleBind   = "create_cluster_role_binding"
	opDeleteClusterRoleBind   = "delete_cluster_role_binding"
	opGetClusterRoleBinding   = "get_cluster_role_binding"
	opListClusterRoleBindings = "list_cluster_role_bindings"
	opListNamespaces          = "list_namespaces"
	opGenerateKubeconfig      = "generate_kubeconfig"
)

// Resource names used in errors and logs.
const (
	resourceServiceAccount     = "serviceaccount"
	resourceSecret             = "secret"
	resourceRoleBinding        = "rolebinding"
	resourceClusterRoleBinding = "clusterrolebinding"
	resourceNamespace          = "namespace"
)

const defaultScanConcurrency = 8

// Ops provisions and inspects per-user permission grants against one cluster.
// It keeps no state between calls beyond its configuration and is safe for
// concurrent use.
type Ops struct {
	client              kubernetes.Interface
	credentialNamespace string
	scanConcurrency     int
	logger              *slog.Logger
	metrics             *metrics.Metrics
	auditor             Auditor
}

// Option configures an Ops.
type Option func(*Ops)

// WithCredentialNamespace sets the namespace holding identities and their
// credential secrets.
func WithCredentialNamespace(ns string) Option {
	return func(o *Ops) {
		if ns != "" {
			o.credentialNamespace = ns
		}
	}
}

// WithScanConcurrency bounds the number of namespaces listed in parallel when
// collecting permissions.
func WithScanConcurrency(n int) Option {
	return func(o *Ops) {
		if n > 0 {
			o.scanConcurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Ops) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records every cluster call on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Ops) {
		o.metrics = m
	}
}

// WithAuditor records every mutation on a.
func WithAuditor(a Auditor) Option {
	return func(o *Ops) {
		if a != nil {
			o.auditor = a
		}
	}
}

// NewOps returns an Ops issuing calls through client.
func NewOps(client kubernetes.Interface, opts ...Option) *Ops {
	o := &Ops{
		client:              client,
		credentialNamespace: DefaultCredentialNamespace,
		scanConcurrency:     defaultScanConcurrency,
		logger:              logging.Discard(),
		auditor:             nopAuditor{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CredentialNamespace returns the namespace holding identities and credentials.
func (o *Ops) CredentialNamespace() string {
	return o.credentialNamespace
}

// call runs one remote call and records its duration and outcome.
func (o *Ops) call(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.RecordClusterOperation(op, err, time.Since(start))
	return err
}

// mutated logs and audits the outcome of a create or delete.
func (o *Ops) mutated(ctx context.Context, entry AuditEntry) {
	entry.Actor = ActorFromContext(ctx)
	logger := logging.WithOperation(o.logger, entry.Operation)
	attrs := []any{
		slog.String("actor", entry.Actor),
		logging.ResourceType(entry.Resource),
		logging.ResourceName(entry.Name),
		logging.Username(entry.Username),
	}
	if entry.Namespace != "" {
		attrs = append(attrs, logging.Namespace(entry.Namespace))
	}
	if entry.Permission != "" {
		attrs = append(attrs, logging.Permission(entry.Permission))
	}
	if entry.Err != nil {
		logger.Warn("cluster mutation failed", append(attrs, logging.Err(entry.Err))...)
	} else {
		logger.Info("cluster mutation applied", attrs...)
	}
	o.auditor.Record(ctx, entry)
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username: %w", naming.ErrEmptySegment)
	}
	if errs := validation.IsDNS1123Subdomain(username); len(errs) > 0 {
		return fmt.Errorf("username %q: %s", username, strings.Join(errs, "; "))
	}
	return nil
}

func validateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace: %w", naming.ErrEmptySegment)
	}
	if errs := validation.IsDNS1123Label(namespace); len(errs) > 0 {
		return fmt.Errorf("namespace %q: %s", namespace, strings.Join(errs, "; "))
	}
	return nil
}

func validatePermission(permission string) error {
	if err := naming.ValidateSegment("permission", permission); err != nil {
		return err
	}
	if errs := path.IsValidPathSegmentName(permission); len(errs) > 0 {
		return fmt.Errorf("permission %q: %s", permission, strings.Join(errs, "; "))
	}
	return nil
}
