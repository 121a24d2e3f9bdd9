package xmppclient

import (
	"context"
	"encoding/xml"

	"github.com/sirupsen/logrus"

	"github.com/exavolt/xmpp-client/pkg/xmppcaps"
	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppdisco"
	"github.com/exavolt/xmpp-client/pkg/xmppim"
)

// XEP-0115  Entity Capabilities

// CapsResponder advertises the client's capabilities in the initial
// presence and answers the disco#info queries peers send to resolve them.
// It serves one connection: it stops when the connection's topics close.
type CapsResponder struct {
	client *Client
	desc   *xmppcaps.Descriptor
	logger logrus.FieldLogger
	done   chan struct{}
}

func NewCapsResponder(client *Client, desc *xmppcaps.Descriptor) *CapsResponder {
	return &CapsResponder{
		client: client,
		desc:   desc,
		logger: client.logger.WithField("node", desc.NodeVer()),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the client before returning, so it must be called
// before Open to see the whole connection.
func (r *CapsResponder) Start(ctx context.Context) {
	states, unsubscribeStates := r.client.SubscribeState()
	queries, unsubscribeQueries := r.client.SubscribeInfoQueries()
	go func() {
		defer close(r.done)
		defer unsubscribeStates()
		defer unsubscribeQueries()
		r.run(ctx, states, queries)
	}()
}

// Done is closed once the responder has stopped.
func (r *CapsResponder) Done() <-chan struct{} {
	return r.done
}

func (r *CapsResponder) run(ctx context.Context, states <-chan State, queries <-chan *xmppcore.ClientIQ) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if state == StateOpen {
				r.advertise(ctx)
			}
		case iq, ok := <-queries:
			if !ok {
				return
			}
			r.handleInfoQuery(ctx, iq)
		}
	}
}

func (r *CapsResponder) advertise(ctx context.Context) {
	presence := &xmppim.ClientPresence{CapsC: r.desc.Caps()}
	if err := r.client.Send(ctx, presence); err != nil {
		r.logger.WithError(err).Warn("Unable to send initial presence")
		return
	}
	r.logger.Debug("Capabilities advertised")
}

func (r *CapsResponder) handleInfoQuery(ctx context.Context, iq *xmppcore.ClientIQ) {
	if iq.Type != xmppcore.IQTypeGet || !r.addressedToUs(iq) {
		return
	}

	var resp *xmppcore.ClientIQ
	var err error
	switch iq.PayloadElementName() {
	case xmppdisco.InfoQueryElementName:
		resp, err = r.infoResponse(iq)
	case xmppdisco.ItemsQueryElementName:
		resp, err = r.itemsResponse(iq)
	default:
		return
	}
	if err != nil {
		r.logger.WithError(err).WithField("stanza", iq.ID).Warn("Unable to answer disco query")
		return
	}
	if err := r.client.Send(ctx, resp); err != nil {
		r.logger.WithError(err).WithField("stanza", iq.ID).Warn("Unable to answer disco query")
	}
}

func (r *CapsResponder) addressedToUs(iq *xmppcore.ClientIQ) bool {
	if iq.To == nil || iq.To.IsEmpty() {
		return true
	}
	bound := r.client.BoundJID()
	return iq.To.Equals(bound) || iq.To.Equals(bound.BareJID())
}

func (r *CapsResponder) infoResponse(iq *xmppcore.ClientIQ) (*xmppcore.ClientIQ, error) {
	var query xmppdisco.InfoIQGet
	if err := iq.DecodePayload(&query); err != nil {
		return nil, err
	}
	resp := iq.AsResponse()
	if query.Node != "" && query.Node != r.desc.NodeVer() {
		resp.Type = xmppcore.IQTypeError
		resp.Error = &xmppcore.StanzaError{
			Type:      xmppcore.StanzaErrorTypeCancel,
			Condition: xmppcore.StanzaErrorConditionItemNotFound,
		}
		return resp, nil
	}
	payload, err := xml.Marshal(r.desc.InfoResult(query.Node))
	if err != nil {
		return nil, err
	}
	resp.Payload = payload
	return resp, nil
}

// A client publishes no items (XEP-0030  4.2).
func (r *CapsResponder) itemsResponse(iq *xmppcore.ClientIQ) (*xmppcore.ClientIQ, error) {
	var query xmppdisco.ItemsIQGet
	if err := iq.DecodePayload(&query); err != nil {
		return nil, err
	}
	payload, err := xml.Marshal(&xmppdisco.ItemsIQResult{Node: query.Node})
	if err != nil {
		return nil, err
	}
	resp := iq.AsResponse()
	resp.Payload = payload
	return resp, nil
}
