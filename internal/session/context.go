package session

import (
	"fmt"
	"log/slog"

	"github.com/xolex/xolex/internal/models"
)

// TokenKey is the key under which the credential is stored.
const TokenKey = "xolex_jwt_token"

// CredentialStore reads the stored credential. An empty value means no session.
type CredentialStore interface {
	GetValue(key string) (string, error)
}

// Context holds the credential and the identity decoded from it.
// It is read once by Init and never refreshed implicitly; a rotated token
// needs a new Init.
type Context struct {
	credential string
	principal  models.Principal
}

// Init reads the credential from the store and decodes it.
// Only a store failure is reported; a malformed credential yields an empty Principal.
func Init(st CredentialStore, logger *slog.Logger) (*Context, error) {
	token, err := st.GetValue(TokenKey)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	return newContext(token, logger), nil
}

// New builds a Context from a credential already in hand.
func New(credential string) *Context {
	return newContext(credential, nil)
}

func newContext(token string, logger *slog.Logger) *Context {
	c := &Context{credential: token}
	if token == "" {
		return c
	}

	p, err := decode(token)
	if err != nil && logger != nil {
		logger.Debug("credential payload not decodable", "error", err)
	}
	c.principal = p
	return c
}

// Credential returns the raw bearer credential, or "".
func (c *Context) Credential() string { return c.credential }

// Authenticated reports whether a credential is present.
func (c *Context) Authenticated() bool { return c.credential != "" }

// Principal returns the decoded identity.
func (c *Context) Principal() models.Principal { return c.principal }
