package config

import (
	"crypto/tls"
	"path/filepath"
	"time"
)

const (
	DefaultBaseURL    = "https://api.scanio.cloud"
	DefaultClientType = "VSCode"
	DefaultScope      = "scan:write scan:read offline_access"
	DefaultHomeFolder = "~/.scanio-remote"
)

// BaseHTTPConfig holds common HTTP client configuration settings.
type BaseHTTPConfig struct {
	RetryCount       int           // Number of retries for failed requests
	RetryWaitTime    time.Duration // Wait time between retries
	RetryMaxWaitTime time.Duration // Maximum wait time for retries
	Timeout          time.Duration // Timeout for requests
	TLSClientConfig  *tls.Config   // TLS configuration
	Proxy            string        // Proxy address
}

// RestyHTTPClientConfig holds additional configuration settings for the Resty HTTP client.
type RestyHTTPClientConfig struct {
	BaseHTTPConfig
	Debug bool // Flag to enable Resty debug mode
}

// DefaultHTTPConfig returns a base configuration for HTTP clients with default values.
func DefaultHTTPConfig() BaseHTTPConfig {
	return BaseHTTPConfig{
		RetryCount:       3,
		RetryWaitTime:    1 * time.Second,
		RetryMaxWaitTime: 5 * time.Second,
		Timeout:          30 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12, // Enforce a minimum TLS version
			InsecureSkipVerify: false,
		},
		Proxy: "",
	}
}

// DefaultRestyConfig returns a default configuration for the Resty HTTP client, extending the base HTTP configuration.
func DefaultRestyConfig() RestyHTTPClientConfig {
	return RestyHTTPClientConfig{
		BaseHTTPConfig: DefaultHTTPConfig(),
		Debug:          false,
	}
}

// DefaultAuth returns the loopback listener defaults: the primary port and one fallback
// for when another running instance already holds the primary.
func DefaultAuth() Auth {
	return Auth{
		CallbackPorts:   []int{7154, 47154},
		CallbackTimeout: 5 * time.Minute,
	}
}

// DefaultPolling returns the scan status polling defaults.
func DefaultPolling() Polling {
	return Polling{
		Interval: 30 * time.Second,
		Timeout:  20 * time.Minute,
	}
}

// GetBaseURL returns the scanning service URL.
func GetBaseURL(cfg *Config) string {
	return SetThen(cfg.Remote.BaseURL, DefaultBaseURL)
}

// GetClientID returns the configured OAuth client id, falling back to the build-time value.
func GetClientID(cfg *Config) string {
	return SetThen(cfg.Remote.ClientID, BuildClientID)
}

// GetClientType returns the client type reported to the service on scan creation.
func GetClientType(cfg *Config) string {
	return SetThen(cfg.Remote.ClientType, DefaultClientType)
}

// GetScope returns the OAuth scope requested during authorization.
func GetScope(cfg *Config) string {
	return SetThen(cfg.Remote.Scope, DefaultScope)
}

// GetAuth returns the loopback listener settings merged with defaults.
func GetAuth(cfg *Config) Auth {
	defaults := DefaultAuth()
	return Auth{
		CallbackPorts:   SetThen(cfg.Auth.CallbackPorts, defaults.CallbackPorts),
		CallbackTimeout: SetThen(cfg.Auth.CallbackTimeout, defaults.CallbackTimeout),
	}
}

// GetPolling returns the polling settings merged with defaults.
func GetPolling(cfg *Config) Polling {
	defaults := DefaultPolling()
	return Polling{
		Interval: SetThen(cfg.Polling.Interval, defaults.Interval),
		Timeout:  SetThen(cfg.Polling.Timeout, defaults.Timeout),
	}
}

// GetHome returns the home folder of the tool.
func GetHome(cfg *Config) string {
	return cfg.ScanioRemote.HomeFolder
}

// GetDatabasePath returns the location of the durable storage.
func GetDatabasePath(cfg *Config) string {
	return filepath.Join(GetHome(cfg), "db")
}

// GetWorkspace returns the workspace folder scans are submitted from.
func GetWorkspace(cfg *Config) string {
	return cfg.ScanioRemote.Workspace
}
