package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	callbackPath    = "/callback"
	shutdownTimeout = 2 * time.Second
)

const callbackPage = `<!DOCTYPE html>
<html>
<head><title>Scanio Remote</title></head>
<body><p>Authentication finished. You can close this window and return to the terminal.</p></body>
</html>
`

type callbackResult struct {
	code string
	err  error
}

// callbackListener is the one-shot loopback HTTP endpoint receiving the authorization redirect.
type callbackListener struct {
	server *http.Server
	port   int
	state  string
	logger hclog.Logger

	once   sync.Once
	result chan callbackResult
}

// startCallbackListener binds the first free port of ports on the loopback interface.
// The redirect URI names localhost, so the port is bound on 127.0.0.1 and, when IPv6 is available, on ::1.
func startCallbackListener(ports []int, state string, logger hclog.Logger) (*callbackListener, error) {
	var lastErr error
	for _, port := range ports {
		listeners, err := listenLoopback(port, logger)
		if err != nil {
			logger.Debug("callback port is not available", "port", port, "error", err)
			lastErr = err
			continue
		}

		l := &callbackListener{
			port:   port,
			state:  state,
			logger: logger,
			result: make(chan callbackResult, 1),
		}
		mux := http.NewServeMux()
		mux.HandleFunc(callbackPath, l.handleCallback)
		l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		for _, ln := range listeners {
			go func(ln net.Listener) {
				if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Debug("callback listener stopped", "address", ln.Addr().String(), "error", err)
				}
			}(ln)
		}
		logger.Debug("callback listener started", "port", port, "listeners", len(listeners))
		return l, nil
	}
	return nil, fmt.Errorf("%w (tried %v): %v", ErrNoPortAvailable, ports, lastErr)
}

// listenLoopback binds port on both loopback addresses. A port taken on either family is unavailable;
// a host without IPv6 is served on IPv4 only.
func listenLoopback(port int, logger hclog.Logger) ([]net.Listener, error) {
	v4, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	v6, err := net.Listen("tcp", net.JoinHostPort("::1", strconv.Itoa(port)))
	switch {
	case err == nil:
		return []net.Listener{v4, v6}, nil
	case errors.Is(err, syscall.EADDRINUSE):
		v4.Close()
		return nil, err
	default:
		logger.Debug("IPv6 loopback is not available, serving IPv4 only", "port", port, "error", err)
		return []net.Listener{v4}, nil
	}
}

// RedirectURI returns the redirect URI registered for the listener.
func (l *callbackListener) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", l.port, callbackPath)
}

func (l *callbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var res callbackResult
	switch {
	case query.Get("state") != l.state:
		res.err = ErrInvalidState
	case query.Get("error") != "":
		res.err = &ProviderError{Code: query.Get("error"), Description: query.Get("error_description")}
	case query.Get("code") == "":
		res.err = ErrMissingCode
	default:
		res.code = query.Get("code")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, callbackPage)

	delivered := false
	l.once.Do(func() {
		l.result <- res
		delivered = true
	})
	if !delivered {
		l.logger.Debug("ignoring repeated callback request")
	}
}

// Wait blocks until the callback arrives, the timeout passes, ctx ends or done is closed.
func (l *callbackListener) Wait(ctx context.Context, timeout time.Duration, done <-chan struct{}) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-l.result:
		return res.code, res.err
	case <-timer.C:
		return "", ErrCallbackTimeout
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case <-done:
		return "", ErrCancelled
	}
}

// Close shuts the listener down.
func (l *callbackListener) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Debug("callback listener shutdown failed", "error", err)
		_ = l.server.Close()
	}
}
