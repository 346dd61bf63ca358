// Package naming maps (username, permission, scope) triples to the names of
// the Kubernetes objects that realise them, and back.
//
// A permission grant has no first-class object in the cluster. Its existence is
// the existence of a binding whose name is derived from the triple, so every
// function here is pure and must stay stable across releases: changing a
// format orphans every binding created with the old one.
package naming

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Separator joins the segments of every generated name. Inputs containing
	// it cannot be decoded unambiguously and are rejected by ValidateSegment.
	Separator = "___"

	// NamespacedFamily prefixes ClusterRoles granted inside a namespace.
	NamespacedFamily = "template-namespaced-resources"

	// ClusterFamily prefixes ClusterRoles granted cluster-wide.
	ClusterFamily = "template-cluster-resources"
)

// ErrSeparatorInInput is returned when a segment contains Separator.
var ErrSeparatorInInput = errors.New("value contains the reserved separator " + Separator)

// ErrEmptySegment is returned when a required segment is empty.
var ErrEmptySegment = errors.New("value must not be empty")

// Family returns the template family for a scope. An empty namespace means
// cluster scope.
func Family(namespace string) string {
	if namespace == "" {
		return ClusterFamily
	}
	return NamespacedFamily
}

// BindingName returns the RoleBinding name for a namespaced grant, or the
// ClusterRoleBinding name when namespace is empty.
func BindingName(username, permission, namespace string) string {
	if namespace == "" {
		return strings.Join([]string{username, ClusterFamily, permission}, Separator)
	}
	return strings.Join([]string{username, NamespacedFamily, permission, namespace}, Separator)
}

// RoleRefName returns the name of the template ClusterRole a binding refers to.
func RoleRefName(permission, namespace string) string {
	return Family(namespace) + Separator + permission
}

// PermissionFromRoleRef extracts the permission from a ClusterRole name
// produced by RoleRefName. Names outside the convention are returned verbatim.
func PermissionFromRoleRef(roleRef string) string {
	parts := strings.Split(roleRef, Separator)
	if len(parts) > 1 {
		return parts[1]
	}
	return roleRef
}

// BindingRef is a binding name split back into its parts.
type BindingRef struct {
	Username   string
	Permission string
	// Namespace is empty for cluster-scoped bindings.
	Namespace string
}

// Cluster reports whether the reference describes a cluster-scoped binding.
func (r BindingRef) Cluster() bool {
	return r.Namespace == ""
}

// ParseBindingName reverses BindingName. It reports false for names that do
// not follow the convention.
func ParseBindingName(name string) (BindingRef, bool) {
	parts := strings.Split(name, Separator)
	switch {
	case len(parts) == 3 && parts[1] == ClusterFamily:
		if parts[0] == "" || parts[2] == "" {
			return BindingRef{}, false
		}
		return BindingRef{Username: parts[0], Permission: parts[2]}, true
	case len(parts) == 4 && parts[1] == NamespacedFamily:
		if parts[0] == "" || parts[2] == "" || parts[3] == "" {
			return BindingRef{}, false
		}
		return BindingRef{Username: parts[0], Permission: parts[2], Namespace: parts[3]}, true
	}
	return BindingRef{}, false
}

// ValidateSegment checks that value can be used as one segment of a generated
// name. kind names the value in the returned error.
func ValidateSegment(kind, value string) error {
	if value == "" {
		return fmt.Errorf("%s: %w", kind, ErrEmptySegment)
	}
	if strings.Contains(value, Separator) {
		return fmt.Errorf("%s %q: %w", kind, value, ErrSeparatorInInput)
	}
	return nil
}
