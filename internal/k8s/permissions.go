package k8s

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/example/kanrigate/internal/logging"
	"github.com/example/kanrigate/internal/naming"
)

// Grant is one binding found to name a user as subject.
type Grant struct {
	// Namespace is empty for ClusterRoleBindings.
	Namespace   string
	BindingName string
	RoleRef     string
	// RoleRefKind is "Role" or "ClusterRole". Empty means ClusterRole.
	RoleRefKind string
	Permission  string
}

// NamespacedPermissions is the result of a namespace scan.
type NamespacedPermissions struct {
	// Permissions maps namespace to the set of permissions held there.
	// Namespaces without grants are absent.
	Permissions map[string]map[string]bool `json:"role_bindings_filtered"`

	// FailedNamespaces lists namespaces whose bindings could not be listed.
	// They are skipped, so an empty Permissions entry for them means
	// "unknown", not "none".
	FailedNamespaces []string `json:"failed_namespaces,omitempty"`
}

// Namespaces returns the names of all namespaces in the cluster.
func (o *Ops) Namespaces(ctx context.Context) ([]string, error) {
	var list *corev1.NamespaceList
	err := o.call(opListNamespaces, func() error {
		var err error
		list, err = o.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
		return err
	})
	if err != nil {
		return nil, wrapAPIError(opListNamespaces, resourceNamespace, "", err)
	}

	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// NamespacedPermissions scans the RoleBindings of every namespace and reports
// the permissions username holds in each. Only the namespace list itself is
// fatal; a namespace whose bindings fail to list is recorded in
// FailedNamespaces and the scan goes on.
func (o *Ops) NamespacedPermissions(ctx context.Context, username string) (*NamespacedPermissions, error) {
	grants, failed, err := o.namespacedGrants(ctx, username)
	if err != nil {
		return nil, err
	}

	result := &NamespacedPermissions{
		Permissions:      make(map[string]map[string]bool),
		FailedNamespaces: failed,
	}
	for _, g := range grants {
		perms, ok := result.Permissions[g.Namespace]
		if !ok {
			perms = make(map[string]bool)
			result.Permissions[g.Namespace] = perms
		}
		perms[g.Permission] = true
	}
	return result, nil
}

// ClusterPermissions reports the permissions username holds through
// ClusterRoleBindings.
func (o *Ops) ClusterPermissions(ctx context.Context, username string) (map[string]bool, error) {
	grants, err := o.clusterGrants(ctx, username)
	if err != nil {
		return nil, err
	}

	perms := make(map[string]bool, len(grants))
	for _, g := range grants {
		perms[g.Permission] = true
	}
	return perms, nil
}

// namespacedGrants fans out one RoleBinding list per namespace, at most
// scanConcurrency at a time. Results carry no snapshot guarantee.
func (o *Ops) namespacedGrants(ctx context.Context, username string) ([]Grant, []string, error) {
	namespaces, err := o.Namespaces(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		mu     sync.Mutex
		grants []Grant
		failed []string
	)
	var g errgroup.Group
	g.SetLimit(o.scanConcurrency)
	for _, ns := range namespaces {
		ns := ns
		g.Go(func() error {
			found, err := o.roleBindingGrants(ctx, ns, username)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.WithOperation(o.logger, opListRoleBindings).Warn("skipping namespace in permission scan",
					logging.Namespace(ns), logging.Username(username), logging.Err(err))
				failed = append(failed, ns)
				return nil
			}
			grants = append(grants, found...)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(failed)
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Namespace != grants[j].Namespace {
			return grants[i].Namespace < grants[j].Namespace
		}
		return grants[i].BindingName < grants[j].BindingName
	})
	return grants, failed, nil
}

func (o *Ops) roleBindingGrants(ctx context.Context, namespace, username string) ([]Grant, error) {
	var list *rbacv1.RoleBindingList
	err := o.call(opListRoleBindings, func() error {
		var err error
		list, err = o.client.RbacV1().RoleBindings(namespace).List(ctx, metav1.ListOptions{})
		return err
	})
	if err != nil {
		return nil, wrapAPIError(opListRoleBindings, resourceRoleBinding, namespace, err)
	}

	var grants []Grant
	for _, rb := range list.Items {
		if !hasSubject(rb.Subjects, username) {
			continue
		}
		grants = append(grants, Grant{
			Namespace:   namespace,
			BindingName: rb.Name,
			RoleRef:     rb.RoleRef.Name,
			RoleRefKind: rb.RoleRef.Kind,
			Permission:  naming.PermissionFromRoleRef(rb.RoleRef.Name),
		})
	}
	return grants, nil
}

func (o *Ops) clusterGrants(ctx context.Context, username string) ([]Grant, error) {
	var list *rbacv1.ClusterRoleBindingList
	err := o.call(opListClusterRoleBindings, func() error {
		var err error
		list, err = o.client.RbacV1().ClusterRoleBindings().List(ctx, metav1.ListOptions{})
		return err
	})
	if err != nil {
		return nil, wrapAPIError(opListClusterRoleBindings, resourceClusterRoleBinding, "", err)
	}

	var grants []Grant
	for _, crb := range list.Items {
		if !hasSubject(crb.Subjects, username) {
			continue
		}
		grants = append(grants, Grant{
			BindingName: crb.Name,
			RoleRef:     crb.RoleRef.Name,
			RoleRefKind: crb.RoleRef.Kind,
			Permission:  naming.PermissionFromRoleRef(crb.RoleRef.Name),
		})
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].BindingName < grants[j].BindingName })
	return grants, nil
}
