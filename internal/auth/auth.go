package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

// DefaultHeader carries the caller token.
const DefaultHeader = "X-Token"

// ErrUnauthorized is returned when a secret is configured and the caller
// token is missing or does not match.
var ErrUnauthorized = errors.New("Unauthorized")

// Config is the guard's own config type.
type Config struct {
	Token    string
	OpenMode bool
	Header   string
}

// Guard checks the shared-secret token on each request. It holds no
// per-request state.
type Guard struct {
	token  []byte
	open   bool
	header string
}

// NewGuard creates a new Guard. Panics when no token is configured and
// open mode was not selected explicitly, or when both are set.
func NewGuard(config Config) *Guard {
	if config.Token == "" && !config.OpenMode {
		panic("auth: token is required unless open_mode is enabled")
	}
	if config.Token != "" && config.OpenMode {
		panic("auth: token and open_mode are mutually exclusive")
	}
	header := config.Header
	if header == "" {
		header = DefaultHeader
	}
	return &Guard{token: []byte(config.Token), open: config.OpenMode, header: http.CanonicalHeaderKey(header)}
}

// Open reports whether the guard lets every request through.
func (g *Guard) Open() bool {
	return g.open
}

// Header returns the canonical name of the token header.
func (g *Guard) Header() string {
	return g.header
}

// Check returns ErrUnauthorized unless the guard is open or supplied
// matches the configured secret.
func (g *Guard) Check(supplied string) error {
	if g.open {
		return nil
	}
	if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), g.token) != 1 {
		return ErrUnauthorized
	}
	return nil
}
