package k8s

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/example/kanrigate/internal/naming"
)

// BindingYAML fetches the binding CreateBinding would create for the same
// arguments and returns it as YAML. managedFields are dropped since they only
// clutter the view.
func (o *Ops) BindingYAML(ctx context.Context, username, permission, namespace string) (string, error) {
	op, resource := opGetRoleBinding, resourceRoleBinding
	if namespace == "" {
		op, resource = opGetClusterRoleBinding, resourceClusterRoleBinding
	}

	name := naming.BindingName(username, permission, namespace)
	if err := validateBinding(username, permission, namespace); err != nil {
		return "", newError(op, resource, name, ErrInvalidArgument, err)
	}

	var obj any
	err := o.call(op, func() error {
		if namespace == "" {
			crb, err := o.client.RbacV1().ClusterRoleBindings().Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return err
			}
			crb.ManagedFields = nil
			crb.APIVersion, crb.Kind = "rbac.authorization.k8s.io/v1", "ClusterRoleBinding"
			obj = crb
			return nil
		}
		rb, err := o.client.RbacV1().RoleBindings(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		rb.ManagedFields = nil
		rb.APIVersion, rb.Kind = "rbac.authorization.k8s.io/v1", "RoleBinding"
		obj = rb
		return nil
	})
	if err != nil {
		return "", wrapAPIError(op, resource, name, err)
	}

	y, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to convert %s %s to yaml: %w", resource, name, err)
	}
	return string(y), nil
}
