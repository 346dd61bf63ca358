package auth

import (
	"fmt"
	"net"
	"time"

	ldap "github.com/go-ldap/ldap/v3"

	"github.com/example/kanrigate/internal/config"
)

const ldapDialTimeout = 5 * time.Second

// LDAPUser is the directory entry an operator logged in as.
type LDAPUser struct {
	DN          string
	DisplayName string
}

// LDAPAuthenticate binds with the service account, looks the operator up by
// uid and binds again as that entry to check the password.
func LDAPAuthenticate(username, password string, cfg *config.Config) (*LDAPUser, error) {
	if password == "" {
		// An empty password would be an unauthenticated bind and always succeed.
		return nil, ErrInvalidCredentials
	}

	l, err := ldap.DialURL(cfg.LDAPURL, ldap.DialWithDialer(&net.Dialer{Timeout: ldapDialTimeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to reach LDAP server: %w", err)
	}
	defer l.Close()

	if err := l.Bind(cfg.LDAPBindDN, cfg.LDAPBindPass); err != nil {
		return nil, fmt.Errorf("LDAP service bind failed: %w", err)
	}

	searchRequest := ldap.NewSearchRequest(
		cfg.LDAPBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, int(ldapDialTimeout.Seconds()), false,
		fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(username)),
		[]string{"dn", "cn", "displayName"},
		nil,
	)
	sr, err := l.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("LDAP search for %s failed: %w", username, err)
	}
	if len(sr.Entries) != 1 {
		return nil, ErrInvalidCredentials
	}

	entry := sr.Entries[0]
	user := &LDAPUser{
		DN:          entry.DN,
		DisplayName: entry.GetAttributeValue("displayName"),
	}
	if user.DisplayName == "" {
		user.DisplayName = entry.GetAttributeValue("cn")
	}

	if err := l.Bind(user.DN, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
