package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/scan-io-git/scanio-remote/internal/notify"
	scanerrors "github.com/scan-io-git/scanio-remote/pkg/shared/errors"
)

// refreshBuffer is how long before expiry a token is renewed.
const refreshBuffer = time.Minute

const (
	flightAuthenticate = "authenticate"
	flightRefresh      = "refresh"
)

// Options configures an Authenticator.
type Options struct {
	BaseURL         string
	ClientID        string
	Scope           string
	CallbackPorts   []int
	CallbackTimeout time.Duration

	// OpenBrowser opens the authorization URL. Defaults to the system browser.
	OpenBrowser func(url string) error
	// Clock is used for expiry checks. Defaults to the real clock.
	Clock clock.PassiveClock
}

// Authenticator owns the token set of the installation and runs the interactive
// authorization code flow with PKCE through a loopback redirect.
type Authenticator struct {
	opts     Options
	http     *resty.Client
	creds    *CredentialStore
	notifier notify.Notifier
	logger   hclog.Logger

	flights singleflight.Group

	mu     sync.Mutex
	token  *TokenSet
	server *ServerConfig
	state  AttemptState

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates an Authenticator. The client id is mandatory.
func New(opts Options, httpClient *resty.Client, creds *CredentialStore, notifier notify.Notifier, logger hclog.Logger) (*Authenticator, error) {
	if strings.TrimSpace(opts.ClientID) == "" {
		return nil, scanerrors.NewConfigError("remote.client_id", "OAuth client id is not configured")
	}
	if len(opts.CallbackPorts) == 0 {
		return nil, scanerrors.NewConfigError("auth.callback_ports", "at least one callback port is required")
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = 5 * time.Minute
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = browser.OpenURL
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if httpClient == nil {
		httpClient = resty.New()
	}

	return &Authenticator{
		opts:     opts,
		http:     httpClient,
		creds:    creds,
		notifier: notifier,
		logger:   logger.Named("auth"),
		closed:   make(chan struct{}),
	}, nil
}

// Init loads the persisted token set. A read failure leaves the authenticator unauthenticated.
func (a *Authenticator) Init() {
	token, err := a.creds.Load()
	if err != nil {
		a.logger.Error("failed to load stored credentials", "error", err)
		return
	}
	if token == nil {
		a.logger.Debug("no stored credentials")
		return
	}
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
	a.logger.Debug("stored credentials loaded", "expires_at", token.ExpiresAt)
}

// IsAuthenticated reports whether an access token exists and has not expired.
func (a *Authenticator) IsAuthenticated() bool {
	token := a.currentToken()
	return token != nil && a.opts.Clock.Now().Before(token.ExpiresAt)
}

// Token returns a copy of the current token set, if any.
func (a *Authenticator) Token() (TokenSet, bool) {
	token := a.currentToken()
	if token == nil {
		return TokenSet{}, false
	}
	return *token, true
}

// State returns the state of the last authentication attempt.
func (a *Authenticator) State() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// AccessToken returns a usable access token, refreshing or re-authenticating when needed.
func (a *Authenticator) AccessToken(ctx context.Context) (string, error) {
	token := a.currentToken()
	if token != nil && a.opts.Clock.Now().Before(token.ExpiresAt.Add(-refreshBuffer)) {
		return token.AccessToken, nil
	}

	if token != nil && token.RefreshToken != "" {
		err := a.RefreshAccessToken(ctx)
		if err == nil {
			if fresh := a.currentToken(); fresh != nil {
				return fresh.AccessToken, nil
			}
		}
		a.logger.Debug("token refresh failed, falling back to interactive authentication", "error", err)
	}

	if err := a.Authenticate(ctx); err != nil {
		return "", err
	}
	fresh := a.currentToken()
	if fresh == nil {
		return "", ErrNotAuthenticated
	}
	return fresh.AccessToken, nil
}

// Authenticate runs the interactive flow. Concurrent callers share one attempt.
// The attempt outlives a caller whose ctx ends; it stops on Close or the callback timeout.
func (a *Authenticator) Authenticate(ctx context.Context) error {
	attemptCtx := context.WithoutCancel(ctx)
	ch := a.flights.DoChan(flightAuthenticate, func() (any, error) {
		return nil, a.authenticate(attemptCtx)
	})
	return a.await(ctx, ch, "authentication")
}

// RefreshAccessToken renews the token set with the stored refresh token.
// On failure the stored token set is left untouched.
func (a *Authenticator) RefreshAccessToken(ctx context.Context) error {
	attemptCtx := context.WithoutCancel(ctx)
	ch := a.flights.DoChan(flightRefresh, func() (any, error) {
		return nil, a.refresh(attemptCtx)
	})
	return a.await(ctx, ch, "token refresh")
}

func (a *Authenticator) await(ctx context.Context, ch <-chan singleflight.Result, what string) error {
	select {
	case res := <-ch:
		if res.Shared {
			a.logger.Debug("shared an attempt with another caller", "attempt", what)
		}
		return res.Err
	case <-ctx.Done():
		a.logger.Debug("caller stopped waiting", "attempt", what, "error", ctx.Err())
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// Logout discards the in-memory and persisted token set.
func (a *Authenticator) Logout() error {
	a.mu.Lock()
	a.token = nil
	a.server = nil
	a.state = StateIdle
	a.mu.Unlock()

	if err := a.creds.Clear(); err != nil {
		a.logger.Error("failed to clear stored credentials", "error", err)
		return err
	}
	a.logger.Info("logged out")
	return nil
}

// Close aborts a pending authentication attempt.
func (a *Authenticator) Close() {
	a.closeOnce.Do(func() { close(a.closed) })
}

func (a *Authenticator) authenticate(ctx context.Context) (err error) {
	a.setState(StateDiscoveringServer)
	defer func() {
		if err != nil {
			a.setState(StateFailed)
			a.logger.Error("authentication failed", "error", err)
			a.notifier.Error(fmt.Sprintf("Authentication failed: %v", err))
		}
	}()

	server, err := a.authorizationServer(ctx)
	if err != nil {
		return err
	}

	pkce := newPKCE()
	state, err := randomToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate state: %w", err)
	}

	listener, err := startCallbackListener(a.opts.CallbackPorts, state, a.logger)
	if err != nil {
		return err
	}
	defer listener.Close()

	conf := a.oauthConfig(server, listener.RedirectURI())
	authURL := conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	a.setState(StateAwaitingCallback)
	if err := a.opts.OpenBrowser(authURL); err != nil {
		a.logger.Warn("failed to open the browser", "url", authURL, "error", err)
		a.notifier.Info("Open this URL in your browser to sign in: " + authURL)
	}

	code, err := listener.Wait(ctx, a.opts.CallbackTimeout, a.closed)
	if err != nil {
		return err
	}

	a.setState(StateExchangingCode)
	tok, err := conf.Exchange(a.oauthContext(ctx), code, oauth2.VerifierOption(pkce.Verifier))
	if err != nil {
		return fmt.Errorf("code exchange failed: %w", err)
	}
	token, err := a.tokenSet(tok, "")
	if err != nil {
		return err
	}

	a.store(token)
	a.setState(StateAuthenticated)
	a.logger.Info("authenticated", "expires_at", token.ExpiresAt)
	return nil
}

func (a *Authenticator) refresh(ctx context.Context) error {
	current := a.currentToken()
	if current == nil || current.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	server, err := a.authorizationServer(ctx)
	if err != nil {
		return err
	}

	conf := a.oauthConfig(server, "")
	tok, err := conf.TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	token, err := a.tokenSet(tok, current.RefreshToken)
	if err != nil {
		return err
	}

	a.store(token)
	a.logger.Debug("access token refreshed", "expires_at", token.ExpiresAt)
	return nil
}

// store swaps the token into memory and persists it. A persistence failure is logged
// and the in-memory token stays authoritative for the session.
func (a *Authenticator) store(token *TokenSet) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()

	if err := a.creds.Save(token); err != nil {
		a.logger.Error("failed to persist credentials", "error", err)
	}
}

func (a *Authenticator) oauthConfig(server *ServerConfig, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: a.opts.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   server.AuthorizationEndpoint,
			TokenURL:  server.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(a.opts.Scope),
	}
}

// oauthContext routes token endpoint calls through the configured HTTP client.
func (a *Authenticator) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.http.GetClient())
}

// tokenSet converts a token endpoint response. The refresh token falls back to previous
// when the response omits one.
func (a *Authenticator) tokenSet(tok *oauth2.Token, previous string) (*TokenSet, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("token response is missing access_token")
	}

	var expiresAt time.Time
	if seconds, ok := expiresIn(tok); ok {
		expiresAt = a.opts.Clock.Now().Add(time.Duration(seconds) * time.Second)
	} else if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry
	} else {
		return nil, fmt.Errorf("token response is missing expires_in")
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previous
	}
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

func expiresIn(tok *oauth2.Token) (int64, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), v > 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	default:
		return 0, false
	}
}

func (a *Authenticator) currentToken() *TokenSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == nil {
		return nil
	}
	token := *a.token
	return &token
}

func (a *Authenticator) setState(state AttemptState) {
	a.mu.Lock()
	prev := a.state
	a.state = state
	a.mu.Unlock()
	if prev != state {
		a.logger.Debug("authentication state changed", "from", prev.String(), "to", state.String())
	}
}
