package xmppclient

import (
	"context"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppping"
)

// XEP-0199  XMPP Ping

// handlePing answers a ping request with an empty result. Pings of any
// other type are dropped.
func (c *Client) handlePing(ctx context.Context, iq *xmppcore.ClientIQ) error {
	if !xmppping.IsRequest(iq) {
		return nil
	}
	if err := c.send(ctx, iq.AsResponse()); err != nil {
		return err
	}
	pingsAnsweredTotal.Inc()
	c.logger.WithField("stanza", iq.ID).Debug("Ping answered")
	return nil
}

// Ping pings to, or the server when to is nil, and returns the request id.
// The reply is delivered on the info-query topic.
func (c *Client) Ping(ctx context.Context, to *xmppcore.JID) (string, error) {
	iq, err := xmppping.NewRequest(to)
	if err != nil {
		return "", err
	}
	return c.SendIQ(ctx, iq)
}
