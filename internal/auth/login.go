package auth

import (
	"errors"
	"log/slog"

	"github.com/example/kanrigate/internal/config"
	"github.com/example/kanrigate/internal/logging"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Login checks the local admin account first, then LDAP when configured, and
// returns the role of the authenticated operator.
func Login(username, password string, cfg *config.Config, logger *slog.Logger) (string, error) {
	if AuthenticateLocal(username, password, cfg) {
		return RoleAdmin, nil
	}
	if !cfg.LDAPEnabled() {
		return "", ErrInvalidCredentials
	}

	user, err := LDAPAuthenticate(username, password, cfg)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			logger.Error("LDAP authentication failed",
				logging.Username(username), logging.Host(cfg.LDAPURL), logging.Err(err))
		}
		return "", ErrInvalidCredentials
	}
	logger.Debug("LDAP login", logging.Username(username), slog.String("dn", user.DN))

	if cfg.IsLDAPAdmin(username) {
		return RoleAdmin, nil
	}
	return RoleViewer, nil
}
