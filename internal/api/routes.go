package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/kanrigate/internal/auth"
	"github.com/example/kanrigate/internal/config"
	"github.com/example/kanrigate/internal/k8s"
	"github.com/example/kanrigate/internal/logging"
	"github.com/example/kanrigate/internal/metrics"
	"github.com/example/kanrigate/internal/models"
)

// AuditLister reads back stored audit events.
type AuditLister interface {
	List(ctx context.Context, username string, limit int) ([]models.AuditEvent, error)
}

// Deps are the collaborators shared by all handlers. Metrics and Audit may
// be nil.
type Deps struct {
	Config  *config.Config
	Ops     *k8s.Ops
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Audit   AuditLister
}

// NewRouter returns a gin engine serving the whole API.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	RegisterRoutes(r, d)
	return r
}

// RegisterRoutes registers the /apps API, /healthz and /metrics.
func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(observe(d.Logger, d.Metrics), corsPolicy())

	apps := r.Group("/apps")
	apps.POST("/login", loginHandler(d))

	protected := apps.Group("")
	protected.Use(auth.AuthMiddleware(d.Config))
	{
		protected.GET("/me", meHandler())
		protected.GET("/getTemplates", templatesHandler(d.Config.NamespacedTemplates))
		protected.GET("/getClusterTemplates", templatesHandler(d.Config.ClusterTemplates))
		protected.GET("/getNamespaces", namespacesHandler(d))
		protected.GET("/getServiceAccounts", serviceAccountsHandler(d))
		protected.POST("/getFilteredRoleBindings", filteredRoleBindingsHandler(d))
		protected.POST("/getFilteredClusterRoleBindings", filteredClusterRoleBindingsHandler(d))
		protected.POST("/getPermissionGraph", permissionGraphHandler(d))
		protected.POST("/getBindingYAML", bindingYAMLHandler(d))
	}

	admin := protected.Group("", auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/createServiceAccount", createServiceAccountHandler(d))
		admin.POST("/createSecret", createSecretHandler(d))
		admin.POST("/createRoleBinding", createRoleBindingHandler(d))
		admin.POST("/createClusterRoleBinding", createClusterRoleBindingHandler(d))
		admin.POST("/generateK8sConfig", generateKubeconfigHandler(d))
		admin.POST("/generateK8sConfigDownloadFile", downloadKubeconfigHandler(d))
		admin.DELETE("/deleteSecret", deleteSecretHandler(d))
		admin.DELETE("/deleteServiceAccount", deleteServiceAccountHandler(d))
		admin.DELETE("/deleteRoleBinding", deleteRoleBindingHandler(d))
		admin.DELETE("/deleteClusterRoleBinding", deleteClusterRoleBindingHandler(d))
		if d.Audit != nil {
			admin.GET("/getAuditEvents", auditEventsHandler(d))
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	r.NoRoute(func(c *gin.Context) {
		respond(c, http.StatusNotFound, "route not found", nil)
	})
}
