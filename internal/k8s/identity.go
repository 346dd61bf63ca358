package k8s

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CreateIdentity creates the ServiceAccount named username in the credential
// namespace. An existing account is reported as ErrAlreadyExists.
func (o *Ops) CreateIdentity(ctx context.Context, username string) (string, error) {
	if err := validateUsername(username); err != nil {
		return "", newError(opCreateServiceAccount, resourceServiceAccount, username, ErrInvalidArgument, err)
	}

	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:      username,
			Namespace: o.credentialNamespace,
		},
	}
	err := o.call(opCreateServiceAccount, func() error {
		_, err := o.client.CoreV1().ServiceAccounts(o.credentialNamespace).Create(ctx, sa, metav1.CreateOptions{})
		return err
	})
	err = wrapAPIError(opCreateServiceAccount, resourceServiceAccount, username, err)
	o.mutated(ctx, AuditEntry{
		Operation: opCreateServiceAccount,
		Resource:  resourceServiceAccount,
		Name:      username,
		Username:  username,
		Namespace: o.credentialNamespace,
		Err:       err,
	})
	if err != nil {
		return "", err
	}
	return username, nil
}

// DeleteIdentity deletes the ServiceAccount named username. Credentials and
// bindings referring to it are left in place.
func (o *Ops) DeleteIdentity(ctx context.Context, username string) (string, error) {
	if err := validateUsername(username); err != nil {
		return "", newError(opDeleteServiceAccount, resourceServiceAccount, username, ErrInvalidArgument, err)
	}

	err := o.call(opDeleteServiceAccount, func() error {
		return o.client.CoreV1().ServiceAccounts(o.credentialNamespace).Delete(ctx, username, metav1.DeleteOptions{})
	})
	err = wrapAPIError(opDeleteServiceAccount, resourceServiceAccount, username, err)
	o.mutated(ctx, AuditEntry{
		Operation: opDeleteServiceAccount,
		Resource:  resourceServiceAccount,
		Name:      username,
		Username:  username,
		Namespace: o.credentialNamespace,
		Err:       err,
	})
	if err != nil {
		return "", err
	}
	return username, nil
}

// ServiceAccounts lists the identities in the credential namespace.
func (o *Ops) ServiceAccounts(ctx context.Context) ([]string, error) {
	var list *corev1.ServiceAccountList
	err := o.call(opListServiceAccounts, func() error {
		var err error
		list, err = o.client.CoreV1().ServiceAccounts(o.credentialNamespace).List(ctx, metav1.ListOptions{})
		return err
	})
	if err != nil {
		return nil, wrapAPIError(opListServiceAccounts, resourceServiceAccount, o.credentialNamespace, err)
	}

	names := make([]string, 0, len(list.Items))
	for _, sa := range list.Items {
		names = append(names, sa.Name)
	}
	return names, nil
}
