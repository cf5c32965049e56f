// Package dialers selects a transport backend by name.
package dialers

import (
	"fmt"
	"sort"

	"github.com/omochice/rtm-client/internal/transport"
	"github.com/omochice/rtm-client/internal/transport/gobwas"
	"github.com/omochice/rtm-client/internal/transport/gorilla"
	"github.com/omochice/rtm-client/internal/transport/ws"
)

// Backend names accepted by New.
const (
	Nhooyr  = "nhooyr"
	Gorilla = "gorilla"
	Gobwas  = "gobwas"
)

// Default is the backend used when none is configured.
const Default = Nhooyr

var factories = map[string]func(transport.Options) transport.Dialer{
	Nhooyr:  func(o transport.Options) transport.Dialer { return ws.NewDialer(o) },
	Gorilla: func(o transport.Options) transport.Dialer { return gorilla.NewDialer(o) },
	Gobwas:  func(o transport.Options) transport.Dialer { return gobwas.NewDialer(o) },
}

// New returns a dialer for the named backend. An empty name selects Default.
func New(name string, opts transport.Options) (transport.Dialer, error) {
	if name == "" {
		name = Default
	}
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown transport backend %q (want one of %v)", name, Names())
	}
	return factory(opts), nil
}

// Names lists the available backends.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
