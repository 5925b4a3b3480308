package mcp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/localrivet/dbkeeper/internal/config"
	"github.com/localrivet/dbkeeper/internal/mcp/mcpauth"
	"github.com/localrivet/dbkeeper/internal/metrics"
	"github.com/localrivet/dbkeeper/internal/notify"
	"github.com/localrivet/dbkeeper/internal/storage"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler serves the MCP endpoint over streamable HTTP behind bearer
// API-key auth. Unauthenticated requests get an RFC 9728 challenge
// pointing at the OAuth discovery metadata so MCP clients can find the
// auth method.
type Handler struct {
	auth      *mcpauth.Authenticator
	inner     http.Handler
	challenge string
	logger    *slog.Logger
}

// NewHandler builds the MCP endpoint. The server is stateless: a fresh
// MCP server backed by the shared engines is created per request.
// baseURL anchors the resource metadata URL in the 401 challenge.
func NewHandler(cfg *config.Config, provider *storage.Provider, notifier *notify.Notifier, m *metrics.Metrics, logger *slog.Logger, baseURL string) *Handler {
	h := &Handler{
		auth:   mcpauth.NewAuthenticator(),
		logger: logger,
		challenge: fmt.Sprintf(`Bearer resource_metadata="%s/.well-known/oauth-protected-resource", scope="mcp:full"`,
			strings.TrimSuffix(baseURL, "/")),
	}
	if !h.auth.Enabled() {
		logger.Warn("mcp endpoint disabled", "reason", mcpauth.APIKeyEnv+" not set")
	}

	stream := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server {
			return NewServer(cfg, provider, notifier, m, logger)
		},
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
	h.inner = h.requireAPIKey(stream)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.inner.ServeHTTP(w, r)
}

// Enabled reports whether the endpoint can serve requests at all.
func (h *Handler) Enabled() bool {
	return h.auth.Enabled()
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debug("mcp request",
			"method", r.Method,
			"session", r.Header.Get("Mcp-Session-Id"))

		if !h.auth.Enabled() {
			http.Error(w, "MCP endpoint not configured", http.StatusServiceUnavailable)
			return
		}
		info, err := h.auth.VerifyHeader(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", h.challenge)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(mcpauth.ContextWithTokenInfo(r.Context(), info)))
	})
}
