package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scan-io-git/scanio-remote/pkg/shared/files"
)

// ValidateConfig checks if the global configurations have valid values.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := ValidateScanioRemoteConfig(cfg); err != nil {
		return fmt.Errorf("YAML global config: scanio_remote directive is invalid: %w", err)
	}
	if err := ValidateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	if err := ValidateRemoteConfig(&cfg.Remote); err != nil {
		return fmt.Errorf("YAML global config: remote directive is invalid: %w", err)
	}
	if err := ValidateAuthConfig(&cfg.Auth); err != nil {
		return fmt.Errorf("YAML global config: auth directive is invalid: %w", err)
	}
	if err := ValidatePollingConfig(&cfg.Polling); err != nil {
		return fmt.Errorf("YAML global config: polling directive is invalid: %w", err)
	}
	return nil
}

// ValidateScanioRemoteConfig resolves the home and workspace folders from environment variables or defaults.
func ValidateScanioRemoteConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("scanio_remote configuration is nil")
	}
	if err := updateHome(cfg); err != nil {
		return fmt.Errorf("failed to update home folder: %w", err)
	}
	if err := updateWorkspace(cfg); err != nil {
		return fmt.Errorf("failed to update workspace folder: %w", err)
	}
	return nil
}

// ValidateHTTPConfig checks if the HTTP configurations have valid values.
func ValidateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}

	durations := map[string]time.Duration{
		"RetryMaxWaitTime": httpConfig.RetryMaxWaitTime,
		"RetryWaitTime":    httpConfig.RetryWaitTime,
		"Timeout":          httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 100*time.Second); err != nil {
			return err
		}
	}

	if err := validateProxy(&httpConfig.Proxy); err != nil {
		return err
	}

	return nil
}

// ValidateRemoteConfig checks the scanning service settings.
// The environment variable SCANIO_REMOTE_BASE_URL overrides the configured URL.
func ValidateRemoteConfig(remote *Remote) error {
	if remote == nil {
		return fmt.Errorf("remote configuration is nil")
	}
	if envBaseURL := os.Getenv("SCANIO_REMOTE_BASE_URL"); envBaseURL != "" {
		remote.BaseURL = envBaseURL
	}
	if remote.BaseURL == "" {
		return nil
	}

	u, err := url.Parse(remote.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https scheme: %q", remote.BaseURL)
	}
	remote.BaseURL = strings.TrimRight(remote.BaseURL, "/")
	return nil
}

// ValidateAuthConfig checks the loopback listener settings.
func ValidateAuthConfig(auth *Auth) error {
	if auth == nil {
		return fmt.Errorf("auth configuration is nil")
	}
	for _, port := range auth.CallbackPorts {
		if err := validatePort(port); err != nil {
			return fmt.Errorf("invalid callback port: %w", err)
		}
	}
	return validateDuration(auth.CallbackTimeout, "callback_timeout", 1*time.Hour)
}

// ValidatePollingConfig checks the polling settings.
func ValidatePollingConfig(polling *Polling) error {
	if polling == nil {
		return fmt.Errorf("polling configuration is nil")
	}
	if err := validateDuration(polling.Interval, "interval", 1*time.Hour); err != nil {
		return err
	}
	if err := validateDuration(polling.Timeout, "timeout", 24*time.Hour); err != nil {
		return err
	}
	if polling.Interval > 0 && polling.Timeout > 0 && polling.Interval > polling.Timeout {
		return fmt.Errorf("interval %v must not exceed timeout %v", polling.Interval, polling.Timeout)
	}
	return nil
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateProxy checks if the given Proxy settings are valid.
func validateProxy(proxy *Proxy) error {
	if proxy == nil {
		return fmt.Errorf("proxy configuration is nil")
	}

	// If host or port is not set, skip further validation
	if proxy.Host == "" || proxy.Port == 0 {
		return nil
	}

	if err := validateHost(&proxy.Host); err != nil {
		return err
	}

	return validatePort(proxy.Port)
}

// validateHost checks if the host part of the proxy configuration is valid.
// It ensures the host includes a scheme; adds "http" if missing.
func validateHost(host *string) error {
	if host == nil {
		return fmt.Errorf("host string pointer is nil")
	}

	if !strings.Contains(*host, "://") {
		*host = "http://" + *host
	}
	*host = strings.TrimRight(*host, "/")

	if _, err := url.Parse(*host); err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}

	return nil
}

// validatePort checks if the port is in the valid range.
func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// updateHome updates the HomeFolder from the SCANIO_REMOTE_HOME environment variable or sets a default value.
func updateHome(cfg *Config) error {
	if homeFolder := os.Getenv("SCANIO_REMOTE_HOME"); homeFolder != "" {
		cfg.ScanioRemote.HomeFolder = homeFolder
	} else if cfg.ScanioRemote.HomeFolder == "" {
		cfg.ScanioRemote.HomeFolder = DefaultHomeFolder
	}

	expandedHomePath, err := files.ExpandPath(cfg.ScanioRemote.HomeFolder)
	if err != nil {
		return fmt.Errorf("failed to expand home path %q: %w", cfg.ScanioRemote.HomeFolder, err)
	}
	cfg.ScanioRemote.HomeFolder = expandedHomePath

	if err := files.CreateFolderIfNotExists(expandedHomePath); err != nil {
		return fmt.Errorf("failed to create home folder %q: %w", cfg.ScanioRemote.HomeFolder, err)
	}
	return nil
}

// updateWorkspace resolves the workspace folder to an absolute path.
func updateWorkspace(cfg *Config) error {
	if workspace := os.Getenv("SCANIO_REMOTE_WORKSPACE"); workspace != "" {
		cfg.ScanioRemote.Workspace = workspace
	} else if cfg.ScanioRemote.Workspace == "" {
		cfg.ScanioRemote.Workspace = "."
	}

	expanded, err := files.ExpandPath(cfg.ScanioRemote.Workspace)
	if err != nil {
		return fmt.Errorf("failed to expand workspace path %q: %w", cfg.ScanioRemote.Workspace, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace path %q: %w", expanded, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("workspace stat error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %q is not a directory", abs)
	}
	cfg.ScanioRemote.Workspace = abs
	return nil
}
