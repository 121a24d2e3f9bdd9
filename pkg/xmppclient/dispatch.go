package xmppclient

import (
	"context"
	"encoding/xml"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppim"
	"github.com/exavolt/xmpp-client/pkg/xmppping"
)

// decodeElement maps a top-level element to its wire type. It returns a
// nil value for elements the client does not know.
func decodeElement(elem Element) (interface{}, error) {
	var v interface{}
	switch elem.ElementName() {
	case xmppcore.StreamFeaturesElementName:
		v = &xmppcore.StreamFeatures{}
	case xmppcore.StreamErrorElementName:
		v = &xmppcore.StreamError{}
	case xmppcore.TLSProceedElementName:
		v = &xmppcore.TLSProceed{}
	case xmppcore.TLSFailureElementName:
		v = &xmppcore.TLSFailure{}
	case xmppcore.SASLChallengeElementName:
		v = &xmppcore.SASLChallenge{}
	case xmppcore.SASLResponseElementName:
		v = &xmppcore.SASLResponse{}
	case xmppcore.SASLSuccessElementName:
		v = &xmppcore.SASLSuccess{}
	case xmppcore.SASLFailureElementName:
		v = &xmppcore.SASLFailure{}
	case xmppcore.ClientIQElementName:
		v = &xmppcore.ClientIQ{}
	case xmppim.ClientMessageElementName:
		v = &xmppim.ClientMessage{}
	case xmppim.ClientPresenceElementName:
		v = &xmppim.ClientPresence{}
	default:
		return nil, nil
	}
	//NOTE:SEC: the transport bounds the element size; decoding it whole
	// is fine here.
	if err := xml.Unmarshal(elem.Raw, v); err != nil {
		return v, errors.Wrapf(err, "unable to decode %s", elem.Name.Local)
	}
	return v, nil
}

func elementKind(v interface{}) string {
	switch v.(type) {
	case xmppcore.Fragment:
		return "fragment"
	case *xmppcore.ClientIQ:
		return "iq"
	case *xmppim.ClientMessage:
		return "message"
	case *xmppim.ClientPresence:
		return "presence"
	}
	return "unknown"
}

func (c *Client) handleElement(ctx context.Context, elem Element) error {
	switch {
	case elem.OpensStream:
		elementsReceivedTotal.WithLabelValues("stream").Inc()
		streamID := elem.AttrValue("id")
		c.mu.Lock()
		c.sess.streamID = streamID
		c.mu.Unlock()
		c.logger.WithField("stream", streamID).Debug("Stream opened by server")
		return nil
	case elem.ClosesStream:
		elementsReceivedTotal.WithLabelValues("stream").Inc()
		return ErrStreamClosedByPeer
	}

	v, err := decodeElement(elem)
	elementsReceivedTotal.WithLabelValues(elementKind(v)).Inc()
	if v == nil {
		c.logger.WithField("element", elem.Name).Warn("Ignoring unknown element")
		return nil
	}
	c.logger.WithField("element", elem.Name.Local).Debug("Element received")

	switch v := v.(type) {
	case xmppcore.Fragment:
		if err != nil {
			return &ProtocolError{Reason: "malformed " + elem.Name.Local, Err: err}
		}
		return c.handleFragment(ctx, v)
	case xmppcore.Stanza:
		if err != nil {
			c.logger.WithError(err).WithField("element", elem.Name.Local).
				Warn("Dropping malformed stanza")
			return nil
		}
		return c.handleStanza(ctx, v)
	}
	return nil
}

func (c *Client) handleFragment(ctx context.Context, fragment xmppcore.Fragment) error {
	switch f := fragment.(type) {
	case *xmppcore.StreamFeatures:
		return c.handleStreamFeatures(ctx, f)
	case *xmppcore.StreamError:
		return &ProtocolError{Reason: "stream error", Err: f}
	case *xmppcore.TLSProceed:
		return c.handleTLSProceed(ctx)
	case *xmppcore.TLSFailure:
		return &ProtocolError{Reason: "STARTTLS negotiation failed"}
	}

	mech := c.session().mechanism
	if mech == nil {
		return &ProtocolError{Reason: "unexpected SASL element"}
	}
	switch f := fragment.(type) {
	case *xmppcore.SASLChallenge:
		return c.handleSASLStep(ctx, mech, f.CharData, false)
	case *xmppcore.SASLResponse:
		return c.handleSASLStep(ctx, mech, f.CharData, true)
	case *xmppcore.SASLSuccess:
		return c.handleSASLSuccess(ctx, mech, f)
	case *xmppcore.SASLFailure:
		return c.handleSASLFailure(mech, f)
	}
	return nil
}

func (c *Client) handleStanza(ctx context.Context, stanza xmppcore.Stanza) error {
	switch s := stanza.(type) {
	case *xmppcore.ClientIQ:
		return c.handleIQ(ctx, s)
	case *xmppim.ClientMessage:
		c.currentTopics().messages.publish(s)
	case *xmppim.ClientPresence:
		c.currentTopics().presences.publish(s)
	}
	return nil
}

// handleIQ routes an IQ: negotiation responses stay internal, pings and
// roster pushes are answered, everything else goes to the info-query topic.
func (c *Client) handleIQ(ctx context.Context, iq *xmppcore.ClientIQ) error {
	sess := c.session()
	payloadName := iq.PayloadElementName()

	switch {
	case !iq.IsRequest() && iq.ID != "" && iq.ID == sess.bindID,
		iq.Type == xmppcore.IQTypeResult && payloadName == xmppcore.BindBindElementName:
		return c.handleBindResponse(ctx, iq)
	case !iq.IsRequest() && iq.ID != "" && iq.ID == sess.sessionReqID:
		c.handleSessionResponse(iq)
		return nil
	case payloadName == xmppping.ElementName:
		return c.handlePing(ctx, iq)
	case iq.Type == xmppcore.IQTypeSet && payloadName == xmppim.RosterQueryElementName:
		return c.handleRosterPush(ctx, iq)
	}

	c.logger.WithFields(logrus.Fields{"stanza": iq.ID, "type": iq.Type, "payload": payloadName}).
		Debug("Publishing info query")
	c.currentTopics().infoQueries.publish(iq)
	return nil
}

// handleRosterPush acknowledges a roster push and publishes it
// (RFC 6121  2.1.6). Pushes that do not come from the account are dropped
// unanswered.
func (c *Client) handleRosterPush(ctx context.Context, iq *xmppcore.ClientIQ) error {
	logger := c.logger.WithField("stanza", iq.ID)
	if !xmppim.IsRosterPush(iq, c.jid) {
		logger.WithField("from", iq.From.String()).Warn("Ignoring roster push from a foreign entity")
		return nil
	}
	push, err := xmppim.ParseRosterPush(iq)
	if err != nil {
		logger.WithError(err).Warn("Rejecting malformed roster push")
		resp := iq.AsResponse()
		resp.Type = xmppcore.IQTypeError
		resp.Error = &xmppcore.StanzaError{
			Type:      xmppcore.StanzaErrorTypeModify,
			Condition: xmppcore.StanzaErrorConditionBadRequest,
		}
		return c.send(ctx, resp)
	}
	if err := c.send(ctx, iq.AsResponse()); err != nil {
		return err
	}
	logger.WithField("contact", push.Item.JID.String()).Debug("Roster push acknowledged")
	c.currentTopics().rosterPushes.publish(push)
	return nil
}
