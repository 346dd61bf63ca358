package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/kanrigate/internal/auth"
	"github.com/example/kanrigate/internal/k8s"
)

// Request parameters come from the query string or, when a body is sent,
// from JSON.

type usernameParams struct {
	Username string `form:"username" json:"username" binding:"required"`
}

type bindingParams struct {
	Username   string `form:"username" json:"username" binding:"required"`
	Namespace  string `form:"namespace" json:"namespace" binding:"required"`
	Permission string `form:"permission" json:"permission" binding:"required"`
}

type clusterBindingParams struct {
	Username   string `form:"username" json:"username" binding:"required"`
	Permission string `form:"permission" json:"permission" binding:"required"`
}

type bindingLookupParams struct {
	Username   string `form:"username" json:"username" binding:"required"`
	Permission string `form:"permission" json:"permission" binding:"required"`
	// Namespace is empty for cluster bindings.
	Namespace string `form:"namespace" json:"namespace"`
}

type kubeconfigParams struct {
	Username  string `form:"username" json:"username" binding:"required"`
	Namespace string `form:"namespace" json:"namespace" binding:"required"`
}

type graphParams struct {
	Username string `form:"username" json:"username" binding:"required"`
	Format   string `form:"format" json:"format" binding:"omitempty,oneof=json dot"`
}

func bindParams(c *gin.Context, obj any) error {
	var err error
	if c.Request.Body != nil && c.Request.Body != http.NoBody && c.Request.ContentLength != 0 {
		err = c.ShouldBindJSON(obj)
	} else {
		err = c.ShouldBindQuery(obj)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", k8s.ErrInvalidArgument, err)
	}
	return nil
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

func loginHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, "invalid payload", nil)
			return
		}

		role, err := auth.Login(req.Username, req.Password, d.Config, d.Logger)
		if err != nil {
			respond(c, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}

		token, exp, err := auth.GenerateToken(req.Username, role, d.Config)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, loginResponse{
			Token:     token,
			ExpiresAt: exp,
			Username:  req.Username,
			Role:      role,
		})
	}
}

func meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		ok(c, gin.H{
			"username": claims.Username,
			"role":     claims.Role,
		})
	}
}

// =============================================================================
// LISTINGS AND INTROSPECTION
// =============================================================================

func templatesHandler(templates []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, templates)
	}
}

func namespacesHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := d.Ops.Namespaces(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"namespaces": names})
	}
}

func serviceAccountsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := d.Ops.ServiceAccounts(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"service_accounts": names})
	}
}

func filteredRoleBindingsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p usernameParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		result, err := d.Ops.NamespacedPermissions(c.Request.Context(), p.Username)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	}
}

func filteredClusterRoleBindingsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p usernameParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		perms, err := d.Ops.ClusterPermissions(c.Request.Context(), p.Username)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"role_bindings_filtered": perms})
	}
}

func permissionGraphHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p graphParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		graph, err := d.Ops.PermissionGraph(c.Request.Context(), p.Username)
		if err != nil {
			fail(c, err)
			return
		}
		if p.Format == "dot" {
			c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", []byte(graph.DOT()))
			return
		}
		ok(c, graph)
	}
}

func bindingYAMLHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p bindingLookupParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		out, err := d.Ops.BindingYAML(c.Request.Context(), p.Username, p.Permission, p.Namespace)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"yaml": out})
	}
}

// =============================================================================
// PROVISIONING
// =============================================================================

func createServiceAccountHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p usernameParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		name, err := d.Ops.CreateIdentity(c.Request.Context(), p.Username)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, name)
	}
}

func deleteServiceAccountHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p usernameParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		name, err := d.Ops.DeleteIdentity(c.Request.Context(), p.Username)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, name)
	}
}

func createSecretHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p usernameParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		name, err := d.Ops.EnsureCredential(c.Request.Context(), p.Username)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, name)
	}
}

func deleteSecretHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p usernameParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		deleted, err := d.Ops.RevokeCredentials(c.Request.Context(), p.Username)
		if err != nil {
			_ = c.Error(err)
			// Deletions that went through are reported alongside the failure.
			respond(c, statusFor(err), err.Error(), deleted)
			return
		}
		ok(c, deleted)
	}
}

func createRoleBindingHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p bindingParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		name, err := d.Ops.CreateBinding(c.Request.Context(), p.Username, p.Permission, p.Namespace)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, name)
	}
}

func deleteRoleBindingHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p bindingParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		name, err := d.Ops.DeleteBinding(c.Request.Context(), p.Username, p.Permission, p.Namespace)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, name)
	}
}

func createClusterRoleBindingHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p clusterBindingParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		name, err := d.Ops.CreateBinding(c.Request.Context(), p.Username, p.Permission, "")
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, name)
	}
}

func deleteClusterRoleBindingHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p clusterBindingParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		name, err := d.Ops.DeleteBinding(c.Request.Context(), p.Username, p.Permission, "")
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, name)
	}
}

// =============================================================================
// KUBECONFIG
// =============================================================================

func kubeconfigRequest(d Deps, p kubeconfigParams) k8s.KubeconfigRequest {
	return k8s.KubeconfigRequest{
		Username:            p.Username,
		Namespace:           p.Namespace,
		ClusterName:         d.Config.ClusterName,
		ControlPlaneAddress: d.Config.ControlPlaneAddress,
	}
}

func generateKubeconfigHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p kubeconfigParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		out, err := d.Ops.GenerateKubeconfig(c.Request.Context(), kubeconfigRequest(d, p))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"kube_config_dump": string(out)})
	}
}

func downloadKubeconfigHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p kubeconfigParams
		if err := bindParams(c, &p); err != nil {
			fail(c, err)
			return
		}
		out, err := d.Ops.GenerateKubeconfig(c.Request.Context(), kubeconfigRequest(d, p))
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename=kube-config.yaml")
		c.Data(http.StatusOK, "application/x-yaml", out)
	}
}

// =============================================================================
// AUDIT
// =============================================================================

func auditEventsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(c, errors.Join(k8s.ErrInvalidArgument, fmt.Errorf("limit %q is not a number", v)))
				return
			}
			limit = n
		}
		events, err := d.Audit.List(c.Request.Context(), c.Query("username"), limit)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, events)
	}
}
