package mcpauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/auth"
)

// APIKeyEnv names the environment variable holding the MCP API keys.
// Multiple keys may be supplied comma-separated so a key can be rotated
// without a restart window.
const APIKeyEnv = "DBKEEPER_MCP_API_KEY"

const scopeFull = "mcp:full"

type tokenInfoKey struct{}

// ContextWithTokenInfo stores verified token info on a request context.
func ContextWithTokenInfo(ctx context.Context, info *auth.TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey{}, info)
}

// TokenInfoFromContext returns the token info set by the auth
// middleware, or nil when the request was not authenticated.
func TokenInfoFromContext(ctx context.Context) *auth.TokenInfo {
	info, _ := ctx.Value(tokenInfoKey{}).(*auth.TokenInfo)
	return info
}

// Authenticator verifies MCP requests against pre-shared API keys.
// Keys are held as SHA-256 digests and compared in constant time.
type Authenticator struct {
	digests [][32]byte
}

// NewAuthenticator reads API keys from APIKeyEnv. With no keys
// configured the authenticator rejects every token and Enabled
// reports false.
func NewAuthenticator() *Authenticator {
	a := &Authenticator{}
	for _, key := range strings.Split(os.Getenv(APIKeyEnv), ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		a.digests = append(a.digests, sha256.Sum256([]byte(key)))
	}
	return a
}

// Enabled reports whether at least one API key is configured.
func (a *Authenticator) Enabled() bool {
	return len(a.digests) > 0
}

// Verify checks a presented token against the configured keys.
func (a *Authenticator) Verify(token string) (*auth.TokenInfo, error) {
	if token == "" || len(a.digests) == 0 {
		return nil, auth.ErrInvalidToken
	}
	presented := sha256.Sum256([]byte(token))
	matched := 0
	for i := range a.digests {
		matched |= subtle.ConstantTimeCompare(presented[:], a.digests[i][:])
	}
	if matched != 1 {
		return nil, auth.ErrInvalidToken
	}
	return &auth.TokenInfo{
		Scopes: []string{scopeFull},
		Extra:  map[string]any{"auth_mode": "api_key"},
	}, nil
}

// VerifyHeader validates an Authorization header value of the form
// "Bearer <key>".
func (a *Authenticator) VerifyHeader(header string) (*auth.TokenInfo, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return a.Verify(token)
}
