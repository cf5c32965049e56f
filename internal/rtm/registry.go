package rtm

import (
	"github.com/omochice/rtm-client/internal/hub"
	"github.com/omochice/rtm-client/pkg/protocol"
)

// CloseInfo accompanies the closing and closed signals.
type CloseInfo struct {
	// ByPeer is true when the server started the close handshake.
	ByPeer bool
}

// Registry exposes one topic per event kind plus the lifecycle topics.
// Topics accept subscribers in any client state. Handlers run on the
// client's read goroutine, must return quickly, and must treat the body
// as read-only because every subscriber receives the same map.
type Registry struct {
	events  map[protocol.Kind]*hub.Topic[protocol.Body]
	closing *hub.Topic[CloseInfo]
	closed  *hub.Topic[CloseInfo]
	errs    *hub.Topic[error]
}

// NewRegistry builds the fixed kind table. onFault receives handler failures.
func NewRegistry(onFault hub.FaultFunc) *Registry {
	r := &Registry{
		events:  make(map[protocol.Kind]*hub.Topic[protocol.Body]),
		closing: hub.NewTopic[CloseInfo]("connection_closing", onFault),
		closed:  hub.NewTopic[CloseInfo]("connection_closed", onFault),
		errs:    hub.NewTopic[error]("connection_error", onFault),
	}
	for _, k := range protocol.Kinds() {
		r.events[k] = hub.NewTopic[protocol.Body](string(k), onFault)
	}
	return r
}

// Topic returns the topic for k, or false for kinds that are not routed.
func (r *Registry) Topic(k protocol.Kind) (*hub.Topic[protocol.Body], bool) {
	t, ok := r.events[k]
	return t, ok
}

func (r *Registry) Hello() *hub.Topic[protocol.Body]          { return r.events[protocol.KindHello] }
func (r *Registry) ReconnectURL() *hub.Topic[protocol.Body]   { return r.events[protocol.KindReconnectURL] }
func (r *Registry) PresenceChange() *hub.Topic[protocol.Body] { return r.events[protocol.KindPresenceChange] }
func (r *Registry) PrefChange() *hub.Topic[protocol.Body]     { return r.events[protocol.KindPrefChange] }
func (r *Registry) Message() *hub.Topic[protocol.Body]        { return r.events[protocol.KindMessage] }
func (r *Registry) ChannelMarked() *hub.Topic[protocol.Body]  { return r.events[protocol.KindChannelMarked] }
func (r *Registry) ChannelJoined() *hub.Topic[protocol.Body]  { return r.events[protocol.KindChannelJoined] }
func (r *Registry) ChannelLeft() *hub.Topic[protocol.Body]    { return r.events[protocol.KindChannelLeft] }
func (r *Registry) UserTyping() *hub.Topic[protocol.Body]     { return r.events[protocol.KindUserTyping] }
func (r *Registry) EmojiChanged() *hub.Topic[protocol.Body]   { return r.events[protocol.KindEmojiChanged] }

// Closing fires when a close handshake starts.
func (r *Registry) Closing() *hub.Topic[CloseInfo] { return r.closing }

// Closed fires once the client reaches StateClosed.
func (r *Registry) Closed() *hub.Topic[CloseInfo] { return r.closed }

// Errors fires once when the client reaches StateFailed, carrying the cause.
func (r *Registry) Errors() *hub.Topic[error] { return r.errs }
