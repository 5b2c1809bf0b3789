package auth

import (
	"context"
	"fmt"
	"strings"
)

const protectedResourcePath = "/.well-known/oauth-protected-resource"

// ServerConfig describes the authorization server issuing tokens for the resource.
type ServerConfig struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
}

type protectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// authorizationServer returns the cached server configuration or discovers it from the resource metadata.
func (a *Authenticator) authorizationServer(ctx context.Context) (*ServerConfig, error) {
	a.mu.Lock()
	if a.server != nil {
		server := *a.server
		a.mu.Unlock()
		return &server, nil
	}
	a.mu.Unlock()

	url := a.opts.BaseURL + protectedResourcePath
	var meta protectedResourceMetadata
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&meta).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("authorization server discovery failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("authorization server discovery failed: %s returned status %d", url, resp.StatusCode())
	}
	if len(meta.AuthorizationServers) == 0 || strings.TrimSpace(meta.AuthorizationServers[0]) == "" {
		return nil, ErrNoAuthorizationServer
	}

	issuer := strings.TrimRight(strings.TrimSpace(meta.AuthorizationServers[0]), "/")
	server := &ServerConfig{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/oauth/authorize",
		TokenEndpoint:         issuer + "/oauth/token",
	}
	a.logger.Debug("authorization server discovered", "issuer", issuer)

	a.mu.Lock()
	a.server = server
	a.mu.Unlock()

	cp := *server
	return &cp, nil
}
