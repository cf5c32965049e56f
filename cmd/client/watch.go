package main

import (
	"log/slog"

	"github.com/omochice/rtm-client/internal/rtm"
	"github.com/omochice/rtm-client/pkg/protocol"
)

// watch attaches a log line to every event and lifecycle signal.
func watch(c *rtm.Client, logger *slog.Logger) {
	c.Hello().Subscribe(func(protocol.Body) error {
		logger.Info("RTM API started")
		return nil
	})
	c.ReconnectURL().Subscribe(func(b protocol.Body) error {
		logger.Info("received reconnect url", "url", b.String("url"))
		return nil
	})
	c.PresenceChange().Subscribe(func(b protocol.Body) error {
		logger.Info("presence changed", "user", b.String("user"), "presence", b.String("presence"))
		return nil
	})
	c.PrefChange().Subscribe(func(b protocol.Body) error {
		logger.Info("preference changed", "name", b.String("name"), "value", b["value"])
		return nil
	})
	c.Message().Subscribe(func(b protocol.Body) error {
		logger.Info("message", "channel", b.String("channel"), "user", b.String("user"), "text", b.String("text"))
		return nil
	})
	c.ChannelMarked().Subscribe(func(b protocol.Body) error {
		logger.Info("channel marked", "channel", b.String("channel"), "ts", b.String("ts"))
		return nil
	})
	c.ChannelJoined().Subscribe(func(b protocol.Body) error {
		logger.Info("channel joined", "channel", channelID(b))
		return nil
	})
	c.ChannelLeft().Subscribe(func(b protocol.Body) error {
		logger.Info("channel left", "channel", b.String("channel"))
		return nil
	})
	c.UserTyping().Subscribe(func(b protocol.Body) error {
		logger.Info("user typing", "user", b.String("user"), "channel", b.String("channel"))
		return nil
	})
	c.EmojiChanged().Subscribe(func(b protocol.Body) error {
		logger.Info("emoji changed", "subtype", b.String("subtype"))
		return nil
	})

	c.Closing().Subscribe(func(info rtm.CloseInfo) error {
		logger.Info("connection closing", "by_peer", info.ByPeer)
		return nil
	})
	c.Closed().Subscribe(func(info rtm.CloseInfo) error {
		logger.Info("connection closed", "by_peer", info.ByPeer)
		return nil
	})
	c.Errors().Subscribe(func(err error) error {
		logger.Error("connection error", "error", err)
		return nil
	})
}

// channelID reads the id of a channel_joined body, whose channel field is
// an object.
func channelID(b protocol.Body) string {
	if ch, ok := b["channel"].(map[string]any); ok {
		id, _ := ch["id"].(string)
		return id
	}
	return b.String("channel")
}
