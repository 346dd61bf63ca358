package k8s

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Credential secrets follow the built-in service-account token contract: the
// token controller fills in the payload after creation.
const (
	// AnnotationServiceAccountName links a token secret to its identity.
	AnnotationServiceAccountName = corev1.ServiceAccountNameKey

	// SecretTypeServiceAccountToken is the type of every credential secret.
	SecretTypeServiceAccountToken = corev1.SecretTypeServiceAccountToken

	// TokenKey and CACertKey are the payload fields read from a credential.
	TokenKey  = corev1.ServiceAccountTokenKey
	CACertKey = corev1.ServiceAccountRootCAKey
)

// CredentialName returns the name given to a new credential secret.
func CredentialName(username string) string {
	return username + "-token"
}

// EnsureCredential returns the name of the token secret annotated with
// username, creating <username>-token when none exists. Repeated calls return
// the same name and create at most one secret.
func (o *Ops) EnsureCredential(ctx context.Context, username string) (string, error) {
	if err := validateUsername(username); err != nil {
		return "", newError(opEnsureCredential, resourceSecret, username, ErrInvalidArgument, err)
	}

	existing, err := o.findCredentials(ctx, opEnsureCredential, username)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return existing[0].Name, nil
	}

	name := CredentialName(username)
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: o.credentialNamespace,
			Annotations: map[string]string{
				AnnotationServiceAccountName: username,
			},
		},
		Type: SecretTypeServiceAccountToken,
	}
	err = o.call(opEnsureCredential, func() error {
		_, err := o.client.CoreV1().Secrets(o.credentialNamespace).Create(ctx, secret, metav1.CreateOptions{})
		return err
	})
	err = wrapAPIError(opEnsureCredential, resourceSecret, name, err)
	o.mutated(ctx, AuditEntry{
		Operation: opEnsureCredential,
		Resource:  resourceSecret,
		Name:      name,
		Username:  username,
		Namespace: o.credentialNamespace,
		Err:       err,
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// RevokeCredentials deletes every token secret annotated with username and
// returns their names. No match is not an error. Deletions are independent:
// on failure the names deleted so far are returned along with the error.
func (o *Ops) RevokeCredentials(ctx context.Context, username string) ([]string, error) {
	if err := validateUsername(username); err != nil {
		return nil, newError(opRevokeCredentials, resourceSecret, username, ErrInvalidArgument, err)
	}

	secrets, err := o.findCredentials(ctx, opRevokeCredentials, username)
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(secrets))
	for _, s := range secrets {
		name := s.Name
		err := o.call(opRevokeCredentials, func() error {
			return o.client.CoreV1().Secrets(o.credentialNamespace).Delete(ctx, name, metav1.DeleteOptions{})
		})
		err = wrapAPIError(opRevokeCredentials, resourceSecret, name, err)
		o.mutated(ctx, AuditEntry{
			Operation: opRevokeCredentials,
			Resource:  resourceSecret,
			Name:      name,
			Username:  username,
			Namespace: o.credentialNamespace,
			Err:       err,
		})
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// findCredentials lists the credential namespace and keeps the secrets
// annotated with username.
func (o *Ops) findCredentials(ctx context.Context, op, username string) ([]corev1.Secret, error) {
	var list *corev1.SecretList
	err := o.call(opListSecrets, func() error {
		var err error
		list, err = o.client.CoreV1().Secrets(o.credentialNamespace).List(ctx, metav1.ListOptions{})
		return err
	})
	if err != nil {
		return nil, wrapAPIError(op, resourceSecret, username, err)
	}

	var matched []corev1.Secret
	for _, s := range list.Items {
		if s.Annotations[AnnotationServiceAccountName] == username {
			matched = append(matched, s)
		}
	}
	return matched, nil
}
