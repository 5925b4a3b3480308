// Package oauth serves the OAuth discovery documents MCP clients probe
// before connecting. dbkeeper authenticates with pre-shared API keys,
// so the metadata only points clients at bearer-token auth; there is no
// authorization code flow behind it.
package oauth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// protectedResource is the RFC 9728 protected resource document.
type protectedResource struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// authServer is the RFC 8414 authorization server document.
type authServer struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

type Handler struct {
	baseURL string
}

func NewHandler(baseURL string) *Handler {
	return &Handler{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// RegisterRoutes mounts the well-known discovery endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/.well-known/oauth-protected-resource", h.metadata(func() any {
		return protectedResource{
			Resource:               h.baseURL + "/mcp",
			AuthorizationServers:   []string{h.baseURL},
			ScopesSupported:        []string{"mcp:full"},
			BearerMethodsSupported: []string{"header"},
		}
	}))
	mux.Handle("/.well-known/oauth-authorization-server", h.metadata(func() any {
		return authServer{
			Issuer:                            h.baseURL,
			TokenEndpoint:                     h.baseURL + "/oauth/token",
			ScopesSupported:                   []string{"mcp:full"},
			ResponseTypesSupported:            []string{},
			GrantTypesSupported:               []string{},
			TokenEndpointAuthMethodsSupported: []string{"bearer"},
		}
	}))
}

// metadata wraps a document builder in the headers discovery clients
// expect: permissive CORS, OPTIONS preflight and no caching.
func (h *Handler) metadata(build func() any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		json.NewEncoder(w).Encode(build())
	})
}
