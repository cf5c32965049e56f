package rtm

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrNoURL is returned when a bootstrap response carries no connection URL.
var ErrNoURL = errors.New("rtm: bootstrap response has no url")

// Session is the immutable connection target of one Client.
type Session struct {
	raw  string
	host string
}

// NewSession validates rawURL as an absolute ws or wss URL.
func NewSession(rawURL string) (Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Session{}, fmt.Errorf("invalid session url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return Session{}, fmt.Errorf("invalid session url %q: scheme must be ws or wss", u.Redacted())
	}
	if u.Host == "" {
		return Session{}, fmt.Errorf("invalid session url %q: missing host", u.Redacted())
	}
	return Session{raw: rawURL, host: u.Host}, nil
}

// SessionFromBootstrap builds a Session from the "url" field of a bootstrap
// response such as the one returned by rtm.connect.
func SessionFromBootstrap(resp map[string]any) (Session, error) {
	raw, _ := resp["url"].(string)
	if raw == "" {
		return Session{}, ErrNoURL
	}
	return NewSession(raw)
}

// URL returns the endpoint URL.
func (s Session) URL() string {
	return s.raw
}

// Host returns the endpoint host. Connection URLs usually embed a one-time
// ticket, so logs carry the host only.
func (s Session) Host() string {
	return s.host
}
