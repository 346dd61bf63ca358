package k8s

import "context"

// AuditEntry describes one create or delete issued against the cluster.
type AuditEntry struct {
	Actor      string
	Operation  string
	Resource   string
	Name       string
	Username   string
	Namespace  string
	Permission string
	Err        error
}

// Auditor records mutations. Implementations must be safe for concurrent use
// and must not block the caller on slow storage failures.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEntry) {}

type actorKey struct{}

// WithActor returns a context carrying the authenticated caller's name.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller stored by WithActor, or "system".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
