package gateway

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"uiagent/internal/domain"
)

// ClientInfo identifies an authenticated monitor client.
type ClientInfo struct {
	Name string
}

// Authenticator validates monitor connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth checks bearer tokens against a fixed list using
// constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator. Clients are named by the
// position of their token in the list. Empty tokens are skipped.
func NewStaticTokenAuth(tokens []string) *StaticTokenAuth {
	a := &StaticTokenAuth{}
	for i, tok := range tokens {
		if tok == "" {
			continue
		}
		a.entries = append(a.entries, authEntry{
			token: []byte(tok),
			info:  &ClientInfo{Name: fmt.Sprintf("monitor-%d", i+1)},
		})
	}
	return a
}

// Authenticate returns the client for token, or ErrAuthInvalid.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, domain.ErrAuthInvalid
}

// requestToken reads the token from the query string, falling back to an
// "Authorization: Bearer" header.
func requestToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(tok)
}
