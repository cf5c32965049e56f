package protocol

// Kind is the discriminant naming what an event represents.
type Kind string

// KindField is the name of the field carrying the event kind on the wire.
const KindField = "kind"

const (
	KindHello          Kind = "hello"
	KindReconnectURL   Kind = "reconnect_url"
	KindPresenceChange Kind = "presence_change"
	KindPrefChange     Kind = "pref_change"
	KindMessage        Kind = "message"
	KindChannelMarked  Kind = "channel_marked"
	KindChannelJoined  Kind = "channel_joined"
	KindChannelLeft    Kind = "channel_left"
	KindUserTyping     Kind = "user_typing"
	KindEmojiChanged   Kind = "emoji_changed"
)

var knownKinds = []Kind{
	KindHello,
	KindReconnectURL,
	KindPresenceChange,
	KindPrefChange,
	KindMessage,
	KindChannelMarked,
	KindChannelJoined,
	KindChannelLeft,
	KindUserTyping,
	KindEmojiChanged,
}

// Kinds returns every kind the client routes, in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(knownKinds))
	copy(out, knownKinds)
	return out
}

// Known reports whether k is one of the routed kinds.
func (k Kind) Known() bool {
	for _, known := range knownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// String returns the wire representation of the kind.
func (k Kind) String() string {
	return string(k)
}
