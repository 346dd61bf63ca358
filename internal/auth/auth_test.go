package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/kanrigate/internal/config"
	"github.com/example/kanrigate/internal/k8s"
	"github.com/example/kanrigate/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	return &config.Config{
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret-test-secret",
		JWTExpMinutes:     5,
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	cfg := testConfig(t)

	token, exp, err := GenerateToken("alice", RoleAdmin, cfg)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	claims, err := ParseToken(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestParseTokenRejects(t *testing.T) {
	cfg := testConfig(t)

	t.Run("wrong secret", func(t *testing.T) {
		other := *cfg
		other.JWTSecret = "another-secret-another"
		token, _, err := GenerateToken("alice", RoleAdmin, &other)
		require.NoError(t, err)

		_, err = ParseToken(token, cfg)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		claims := &Claims{
			Username: "alice",
			Role:     RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
		require.NoError(t, err)

		_, err = ParseToken(token, cfg)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("unsigned", func(t *testing.T) {
		claims := &Claims{
			Username: "alice",
			Role:     RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ParseToken(token, cfg)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseToken("not-a-token", cfg)
		assert.Error(t, err)
	})
}

func TestAuthenticateLocal(t *testing.T) {
	cfg := testConfig(t)

	assert.True(t, AuthenticateLocal("admin", "s3cret", cfg))
	assert.False(t, AuthenticateLocal("admin", "wrong", cfg))
	assert.False(t, AuthenticateLocal("root", "s3cret", cfg))

	cfg.AdminPasswordHash = ""
	assert.False(t, AuthenticateLocal("admin", "", cfg))
}

func TestLogin(t *testing.T) {
	cfg := testConfig(t)

	role, err := Login("admin", "s3cret", cfg, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = Login("admin", "nope", cfg, logging.Discard())
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Login("bob", "whatever", cfg, logging.Discard())
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLDAPAuthenticateRejectsEmptyPassword(t *testing.T) {
	cfg := testConfig(t)
	cfg.LDAPURL = "ldap://127.0.0.1:1"

	_, err := LDAPAuthenticate("alice", "", cfg)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func newTestRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/read", func(c *gin.Context) {
		c.String(http.StatusOK, k8s.ActorFromContext(c.Request.Context()))
	})
	r.POST("/write", RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig(t)
	r := newTestRouter(cfg)
	adminToken, _, err := GenerateToken("alice", RoleAdmin, cfg)
	require.NoError(t, err)
	viewerToken, _, err := GenerateToken("bob", RoleViewer, cfg)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		status int
	}{
		{"no header", http.MethodGet, "/read", "", http.StatusUnauthorized},
		{"wrong scheme", http.MethodGet, "/read", "Basic " + adminToken, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/read", "Bearer abc", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/read", "Bearer " + viewerToken, http.StatusOK},
		{"viewer cannot write", http.MethodPost, "/write", "Bearer " + viewerToken, http.StatusForbidden},
		{"admin writes", http.MethodPost, "/write", "bearer " + adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAuthMiddlewareSetsActor(t *testing.T) {
	cfg := testConfig(t)
	r := newTestRouter(cfg)
	token, _, err := GenerateToken("alice", RoleViewer, cfg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestAuthMiddlewareErrorEnvelope(t *testing.T) {
	cfg := testConfig(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextKeyStart, time.Now().Add(-time.Second))
		c.Next()
	})
	r.Use(AuthMiddleware(cfg))
	r.GET("/read", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body struct {
		MetaData map[string]any `json:"meta_data"`
		Data     any            `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(http.StatusUnauthorized), body.MetaData["status"])
	assert.Equal(t, "missing token", body.MetaData["message"])
	require.Contains(t, body.MetaData, "exec_time")
	assert.GreaterOrEqual(t, body.MetaData["exec_time"], 1.0)
	assert.Nil(t, body.Data)
}

func TestExecTimeWithoutStart(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Zero(t, ExecTime(c))
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")))
}
