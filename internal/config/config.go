package config

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/example/kanrigate/internal/k8s"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	controlPlaneProbeTimeout = 5 * time.Second

	// defaultJWTSecret is only acceptable outside production.
	defaultJWTSecret = "change-me-secret-change-me"
)

var clusterNameRegex = regexp.MustCompile(`^[a-zA-Z0-9-@]+$`)

// Config holds every setting of the service.
type Config struct {
	Port     int    `validate:"min=1024,max=65535"`
	Env      string `validate:"oneof=development production"`
	LogLevel string

	// ClusterName and ControlPlaneAddress end up in generated kubeconfigs.
	ClusterName         string `validate:"required,cluster_name"`
	ControlPlaneAddress string `validate:"required,http_address"`
	ProbeControlPlane   bool

	AdminUsername     string `validate:"required"`
	AdminPasswordHash string
	JWTSecret         string `validate:"required,min=16"`
	JWTExpMinutes     int    `validate:"min=1"`

	CredentialNamespace string `validate:"required"`
	Kubeconfig          string
	ScanConcurrency     int `validate:"min=1,max=128"`

	NamespacedTemplates []string `validate:"min=1,dive,required"`
	ClusterTemplates    []string `validate:"min=1,dive,required"`

	LDAPURL        string
	LDAPBaseDN     string
	LDAPBindDN     string
	LDAPBindPass   string
	LDAPAdminUsers []string

	AuditEnabled bool
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
}

// LoadEnv loads a .env file from the working directory when one exists.
func LoadEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

// New reads the configuration from the environment.
func New() *Config {
	return &Config{
		Port:     getEnvInt("APP_PORT", 3232),
		Env:      getEnv("APP_ENV", EnvDevelopment),
		LogLevel: getEnv("APP_LOG_LEVEL", "info"),

		ClusterName:         getEnv("APP_CLUSTER_NAME", "kubernetes-admin@kubernetes"),
		ControlPlaneAddress: getEnv("APP_CONTROL_PLANE_ADDRESS", "https://172.17.0.3:6443"),
		ProbeControlPlane:   getEnvBool("APP_CHECK_CONTROL_PLANE", false),

		AdminUsername:     getEnv("APP_ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("APP_ADMIN_PASSWORD_HASH", ""),
		JWTSecret:         getEnv("APP_JWT_SECRET", defaultJWTSecret),
		JWTExpMinutes:     getEnvInt("APP_JWT_EXP_MINUTES", 60),

		CredentialNamespace: getEnv("APP_CREDENTIAL_NAMESPACE", k8s.CurrentNamespace()),
		Kubeconfig:          getEnv("KUBECONFIG", ""),
		ScanConcurrency:     getEnvInt("APP_SCAN_CONCURRENCY", 8),

		NamespacedTemplates: getEnvList("APP_NAMESPACED_TEMPLATES", []string{"operation", "monitoring", "developer"}),
		ClusterTemplates:    getEnvList("APP_CLUSTER_TEMPLATES", []string{"admin", "read-only", "none"}),

		LDAPURL:        getEnv("LDAP_URL", ""),
		LDAPBaseDN:     getEnv("LDAP_BASE_DN", "dc=example,dc=com"),
		LDAPBindDN:     getEnv("LDAP_BIND_DN", "cn=admin,dc=example,dc=com"),
		LDAPBindPass:   getEnv("LDAP_BIND_PASSWORD", ""),
		LDAPAdminUsers: getEnvList("LDAP_ADMIN_USERS", nil),

		AuditEnabled: getEnvBool("AUDIT_ENABLED", false),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "kanrigate"),
		DBPassword:   getEnv("DB_PASSWORD", "kanrigate"),
		DBName:       getEnv("DB_NAME", "kanrigate"),
	}
}

// Load reads .env, the environment, and validates the result.
func Load() (*Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := New()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// LDAPEnabled reports whether operator logins go through LDAP.
func (c *Config) LDAPEnabled() bool {
	return c.LDAPURL != ""
}

// IsLDAPAdmin reports whether an LDAP user gets the admin role.
func (c *Config) IsLDAPAdmin(username string) bool {
	for _, u := range c.LDAPAdminUsers {
		if u == username {
			return true
		}
	}
	return false
}

// DSN returns the postgres connection string of the audit store.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Errors, " | ")
}

// Validate checks static constraints. It does not touch the network; see
// CheckControlPlane.
func (c *Config) Validate() error {
	result := &ValidationError{}
	if err := newValidator().Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return err
		}
		for _, fe := range fieldErrors {
			result.Errors = append(result.Errors,
				fmt.Sprintf("field '%s' failed validation, condition: %s", fe.Namespace(), fe.Tag()))
		}
	}
	if c.Env == EnvProduction && c.JWTSecret == defaultJWTSecret {
		result.Errors = append(result.Errors,
			"field 'Config.JWTSecret' failed validation, condition: APP_JWT_SECRET must be set in production")
	}
	if len(result.Errors) > 0 {
		return result
	}
	return nil
}

// CheckControlPlane verifies the control plane address answers with a
// status below 500. Certificates are not verified: the cluster CA is usually
// private and only reachability matters here.
func (c *Config) CheckControlPlane(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, controlPlaneProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ControlPlaneAddress, nil)
	if err != nil {
		return fmt.Errorf("invalid control plane address %s: %w", c.ControlPlaneAddress, err)
	}
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("control plane %s unreachable: %w", c.ControlPlaneAddress, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("control plane %s answered %d", c.ControlPlaneAddress, resp.StatusCode)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cluster_name", func(fl validator.FieldLevel) bool {
		return clusterNameRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("http_address", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
	})
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return val
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return val
		}
	}
	return def
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
