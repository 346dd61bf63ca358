package k8s

import (
	"context"

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/example/kanrigate/internal/naming"
)

// CreateBinding grants permission to username. A non-empty namespace creates
// a RoleBinding there; an empty namespace creates a ClusterRoleBinding. The
// binding refers to the template ClusterRole for the permission and names the
// identity in the credential namespace as its only subject.
func (o *Ops) CreateBinding(ctx context.Context, username, permission, namespace string) (string, error) {
	op, resource := opCreateRoleBinding, resourceRoleBinding
	if namespace == "" {
		op, resource = opCreateClusterRoleBind, resourceClusterRoleBinding
	}

	name := naming.BindingName(username, permission, namespace)
	if err := validateBinding(username, permission, namespace); err != nil {
		return "", newError(op, resource, name, ErrInvalidArgument, err)
	}

	meta := metav1.ObjectMeta{Name: name, Namespace: namespace}
	roleRef := rbacv1.RoleRef{
		APIGroup: rbacv1.GroupName,
		Kind:     "ClusterRole",
		Name:     naming.RoleRefName(permission, namespace),
	}
	subjects := []rbacv1.Subject{o.subject(username)}

	err := o.call(op, func() error {
		if namespace == "" {
			crb := &rbacv1.ClusterRoleBinding{ObjectMeta: meta, RoleRef: roleRef, Subjects: subjects}
			_, err := o.client.RbacV1().ClusterRoleBindings().Create(ctx, crb, metav1.CreateOptions{})
			return err
		}
		rb := &rbacv1.RoleBinding{ObjectMeta: meta, RoleRef: roleRef, Subjects: subjects}
		_, err := o.client.RbacV1().RoleBindings(namespace).Create(ctx, rb, metav1.CreateOptions{})
		return err
	})
	err = wrapAPIError(op, resource, name, err)
	o.mutated(ctx, AuditEntry{
		Operation:  op,
		Resource:   resource,
		Name:       name,
		Username:   username,
		Namespace:  namespace,
		Permission: permission,
		Err:        err,
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// DeleteBinding removes the binding CreateBinding would have created for the
// same arguments.
func (o *Ops) DeleteBinding(ctx context.Context, username, permission, namespace string) (string, error) {
	op, resource := opDeleteRoleBinding, resourceRoleBinding
	if namespace == "" {
		op, resource = opDeleteClusterRoleBind, resourceClusterRoleBinding
	}

	name := naming.BindingName(username, permission, namespace)
	if err := validateBinding(username, permission, namespace); err != nil {
		return "", newError(op, resource, name, ErrInvalidArgument, err)
	}

	err := o.call(op, func() error {
		if namespace == "" {
			return o.client.RbacV1().ClusterRoleBindings().Delete(ctx, name, metav1.DeleteOptions{})
		}
		return o.client.RbacV1().RoleBindings(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	})
	err = wrapAPIError(op, resource, name, err)
	o.mutated(ctx, AuditEntry{
		Operation:  op,
		Resource:   resource,
		Name:       name,
		Username:   username,
		Namespace:  namespace,
		Permission: permission,
		Err:        err,
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

func (o *Ops) subject(username string) rbacv1.Subject {
	return rbacv1.Subject{
		Kind:      rbacv1.ServiceAccountKind,
		Name:      username,
		Namespace: o.credentialNamespace,
	}
}

func validateBinding(username, permission, namespace string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validatePermission(permission); err != nil {
		return err
	}
	if namespace != "" {
		return validateNamespace(namespace)
	}
	return nil
}

func hasSubject(subjects []rbacv1.Subject, username string) bool {
	for _, s := range subjects {
		if s.Name == username {
			return true
		}
	}
	return false
}
