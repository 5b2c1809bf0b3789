package auth

import (
	"fmt"
	"time"

	authcore "github.com/scan-io-git/scanio-remote/internal/auth"
)

// describeSession renders the stored session as one line of text.
func describeSession(token authcore.TokenSet, ok bool, now time.Time) string {
	if !ok || token.AccessToken == "" {
		return "Not signed in. Run 'scanio-remote auth login'."
	}

	expires := token.ExpiresAt.Local().Format(time.RFC1123)
	if now.Before(token.ExpiresAt) {
		left := token.ExpiresAt.Sub(now).Round(time.Second)
		return fmt.Sprintf("Signed in. The access token expires at %s (in %s).", expires, left)
	}
	if token.RefreshToken != "" {
		return fmt.Sprintf("The access token expired at %s. It is refreshed on the next request.", expires)
	}
	return fmt.Sprintf("The session expired at %s. Run 'scanio-remote auth login'.", expires)
}
