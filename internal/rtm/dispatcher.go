package rtm

import (
	"github.com/omochice/rtm-client/internal/hub"
	"github.com/omochice/rtm-client/pkg/protocol"
)

// Dispatcher routes decoded events to the topic of their kind.
type Dispatcher struct {
	routes map[protocol.Kind]*hub.Topic[protocol.Body]
}

// NewDispatcher snapshots the kind table of r. The table is read-only
// afterwards.
func NewDispatcher(r *Registry) *Dispatcher {
	routes := make(map[protocol.Kind]*hub.Topic[protocol.Body], len(r.events))
	for k, t := range r.events {
		routes[k] = t
	}
	return &Dispatcher{routes: routes}
}

// Dispatch publishes ev.Body to the subscribers of ev.Kind and returns once
// every handler has run. It returns false for kinds without a route, which
// is not an error: the service may add kinds this client does not know.
func (d *Dispatcher) Dispatch(ev protocol.Event) bool {
	topic, ok := d.routes[ev.Kind]
	if !ok {
		return false
	}
	topic.Publish(ev.Body)
	return true
}
