package k8s

import (
	"context"
	"errors"
	"sync"
	"testing"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/example/kanrigate/internal/naming"
)

const testCredentialNamespace = "kanrigate"

var errBoom = errors.New("connection reset by peer")

// recordingAuditor keeps every entry it is given.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recordingAuditor) Record(_ context.Context, e AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAuditor) Entries() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEntry(nil), r.entries...)
}

func setupTestOps(t *testing.T, objects ...runtime.Object) (*Ops, *fake.Clientset, *recordingAuditor) {
	t.Helper()
	client := fake.NewSimpleClientset(objects...)
	auditor := &recordingAuditor{}
	ops := NewOps(client,
		WithCredentialNamespace(testCredentialNamespace),
		WithAuditor(auditor),
		WithScanConcurrency(2),
	)
	return ops, client, auditor
}

func testNamespace(name string) *corev1.Namespace {
	return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
}

func testCredentialSecret(name, username string, data map[string][]byte) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   testCredentialNamespace,
			Annotations: map[string]string{AnnotationServiceAccountName: username},
		},
		Type: SecretTypeServiceAccountToken,
		Data: data,
	}
}

func testRoleBinding(namespace, username, permission string) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      naming.BindingName(username, permission, namespace),
			Namespace: namespace,
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "ClusterRole",
			Name:     naming.RoleRefName(permission, namespace),
		},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      username,
			Namespace: testCredentialNamespace,
		}},
	}
}

func testClusterRoleBinding(username, permission string) *rbacv1.ClusterRoleBinding {
	return &rbacv1.ClusterRoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: naming.BindingName(username, permission, "")},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "ClusterRole",
			Name:     naming.RoleRefName(permission, ""),
		},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      username,
			Namespace: testCredentialNamespace,
		}},
	}
}

// countActions returns how many recorded actions match verb and resource.
func countActions(client *fake.Clientset, verb, resource string) int {
	n := 0
	for _, a := range client.Actions() {
		if a.GetVerb() == verb && a.GetResource().Resource == resource {
			n++
		}
	}
	return n
}

// failOn makes every verb call on resource fail, optionally only in one namespace.
func failOn(client *fake.Clientset, verb, resource, namespace string, err error) {
	client.PrependReactor(verb, resource, func(action k8stesting.Action) (bool, runtime.Object, error) {
		if namespace != "" && action.GetNamespace() != namespace {
			return false, nil, nil
		}
		return true, nil, err
	})
}
