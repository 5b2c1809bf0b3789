// Package remote talks to the scanning service REST API.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-remote/internal/results"
	"github.com/scan-io-git/scanio-remote/pkg/shared/config"
	"github.com/scan-io-git/scanio-remote/pkg/shared/errors"
)

const (
	scanPath      = "/api/v1/scan"
	scanByIDPath  = "/api/v1/scan/{id}"
	requestIDName = "X-Request-ID"
)

// TokenSource supplies bearer tokens, refreshing or re-authenticating as needed.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// File is one submitted file.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CreateScanRequest is the body of the create-scan call.
type CreateScanRequest struct {
	Title    string         `json:"title"`
	Type     string         `json:"type"`
	Files    []File         `json:"files"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateScanResponse is the reply of the create-scan call.
type CreateScanResponse struct {
	Success bool           `json:"success"`
	ScanID  string         `json:"scanId"`
	ChatID  string         `json:"chatId,omitempty"`
	Status  results.Status `json:"status,omitempty"`
	Message string         `json:"message,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e *errorResponse) text(resp *resty.Response) string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	}
	if body := strings.TrimSpace(resp.String()); body != "" && len(body) <= 200 {
		return body
	}
	return http.StatusText(resp.StatusCode())
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	ClientType string
	UserAgent  string
}

// Client is the scanning service API client.
type Client struct {
	http       *resty.Client
	tokens     TokenSource
	baseURL    string
	clientType string
	userAgent  string
	logger     hclog.Logger
}

// NewClient creates a Client over a configured resty client.
func NewClient(httpClient *resty.Client, tokens TokenSource, opts Options, logger hclog.Logger) *Client {
	if opts.ClientType == "" {
		opts.ClientType = config.DefaultClientType
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "scanio-remote"
	}
	return &Client{
		http:       httpClient,
		tokens:     tokens,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		clientType: opts.ClientType,
		userAgent:  opts.UserAgent,
		logger:     logger.Named("remote"),
	}
}

func (c *Client) request(ctx context.Context) (*resty.Request, string, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	requestID := uuid.NewString()
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader(requestIDName, requestID).
		SetHeader("User-Agent", c.userAgent).
		SetHeader("Accept", "application/json")
	return req, requestID, nil
}

// CreateScan submits files for scanning.
func (c *Client) CreateScan(ctx context.Context, body CreateScanRequest) (*CreateScanResponse, error) {
	if body.Type == "" {
		body.Type = c.clientType
	}

	req, requestID, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var out CreateScanResponse
	var failure errorResponse
	c.logger.Debug("creating scan", "title", body.Title, "files", len(body.Files), "request_id", requestID)
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		SetError(&failure).
		Post(c.baseURL + scanPath)
	if err != nil {
		return nil, fmt.Errorf("create scan request failed: %w", err)
	}
	if resp.IsError() {
		return nil, errors.NewAPIError("create scan", resp.StatusCode(), failure.text(resp))
	}
	if !out.Success {
		message := out.Message
		if message == "" {
			message = "the service did not accept the scan"
		}
		return nil, errors.NewAPIError("create scan", resp.StatusCode(), message)
	}
	if out.ScanID == "" {
		return nil, errors.NewAPIError("create scan", resp.StatusCode(), "response has no scan id")
	}

	c.logger.Debug("scan created", "id", out.ScanID, "status", out.Status, "request_id", requestID)
	return &out, nil
}

// GetScan fetches the current state of a scan.
func (c *Client) GetScan(ctx context.Context, id string) (*results.ScanRecord, error) {
	req, requestID, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var out results.ScanRecord
	var failure errorResponse
	resp, err := req.
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&failure).
		Get(c.baseURL + scanByIDPath)
	if err != nil {
		return nil, fmt.Errorf("get scan request failed: %w", err)
	}
	if resp.IsError() {
		return nil, errors.NewAPIError("get scan", resp.StatusCode(), failure.text(resp))
	}
	if out.ID == "" {
		out.ID = id
	}

	c.logger.Debug("scan fetched", "id", id, "status", out.Status, "request_id", requestID)
	return &out, nil
}
