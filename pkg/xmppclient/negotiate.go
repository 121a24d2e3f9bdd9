package xmppclient

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppsasl"
)

// RFC 6120  4.3  Stream Negotiation

func (c *Client) handleStreamFeatures(ctx context.Context, features *xmppcore.StreamFeatures) error {
	c.mu.Lock()
	f := serverFeaturesFrom(features, c.cfg.RequireTLS)
	if c.sess.authenticated {
		f &^= featureSaslAny
	}
	c.sess.features = f
	c.sess.saslOffered = !c.sess.authenticated && features.HasAuthMechanisms()
	c.sess.sessionNS = features.SessionNamespace()
	c.mu.Unlock()

	c.logger.WithField("features", f.String()).Debug("Stream features received")
	return c.negotiate(ctx)
}

// negotiate performs the next step for the remaining features. The order
// is fixed: TLS, authentication, resource binding, session.
func (c *Client) negotiate(ctx context.Context) error {
	for {
		sess := c.session()
		switch {
		case sess.features.Has(FeatureSecureConnection) && !sess.secured:
			if sess.tlsRequested {
				return nil
			}
			c.mu.Lock()
			c.sess.tlsRequested = true
			c.mu.Unlock()
			return c.send(ctx, &xmppcore.TLSStartTLS{})
		case sess.features.HasSASL() || sess.saslOffered:
			// also reached when only unknown mechanisms are offered
			return c.startAuthentication(ctx, sess)
		case sess.features.Has(FeatureResourceBinding):
			if sess.bindID != "" {
				return nil
			}
			return c.requestBind(ctx)
		case sess.features.Has(FeatureSessions):
			if err := c.requestSession(ctx); err != nil {
				return err
			}
		default:
			c.setState(StateOpen)
			c.logger.WithFields(logrus.Fields{"stream": sess.streamID, "bound": sess.jid}).
				Info("Negotiation completed")
			return nil
		}
	}
}

// RFC 6120  6  SASL Negotiation

func (c *Client) startAuthentication(ctx context.Context, sess session) error {
	if c.cfg.RequireTLS && !sess.secured {
		return &ProtocolError{Reason: "server offers authentication over an unencrypted stream"}
	}
	c.setState(StateAuthenticating)

	mech, err := xmppsasl.Select(sess.features.mechanismNames(), c.creds)
	if err != nil {
		return c.failAuthentication(AuthFailureNoMechanism, "",
			"authentication failed (no usable mechanism)", err)
	}
	c.mu.Lock()
	c.sess.mechanism = mech
	c.mu.Unlock()

	c.logger.WithField("mechanism", mech.Name()).Info("Authenticating")
	initial, err := mech.Start(ctx)
	if err != nil {
		return c.failAuthentication(AuthFailureMechanismError, mech.Name(),
			"authentication failed ("+err.Error()+")", err)
	}
	auth := &xmppcore.SASLAuth{
		Mechanism: mech.Name(),
		CharData:  xmppsasl.Encode(initial),
	}
	if mech.Name() == xmppsasl.MechanismXOAuth2 {
		auth.AuthService = "oauth2"
	}
	return c.send(ctx, auth)
}

// handleSASLStep passes a challenge (or a server response) to the
// mechanism and sends its answer.
func (c *Client) handleSASLStep(ctx context.Context, mech xmppsasl.Mechanism, charData string, fromResponse bool) error {
	data, err := xmppsasl.Decode(charData)
	if err == nil {
		if fromResponse {
			data, err = mech.Response(data)
		} else {
			data, err = mech.Challenge(data)
		}
	}
	if err != nil {
		if abortErr := c.send(ctx, &xmppcore.SASLAbort{}); abortErr != nil {
			c.logger.WithError(abortErr).Debug("Unable to abort authentication")
		}
		return c.failAuthentication(AuthFailureMechanismError, mech.Name(),
			"authentication failed ("+err.Error()+")", err)
	}
	// RFC 6120  6.4.3: zero-length data is an empty element
	var response xmppcore.SASLResponse
	if len(data) > 0 {
		response.CharData = xmppsasl.Encode(data)
	}
	return c.send(ctx, &response)
}

func (c *Client) handleSASLSuccess(ctx context.Context, mech xmppsasl.Mechanism, success *xmppcore.SASLSuccess) error {
	data, err := xmppsasl.Decode(success.CharData)
	if err == nil {
		err = mech.Success(data)
	}
	if err != nil {
		return c.failAuthentication(AuthFailureVerificationFailed, mech.Name(),
			"authentication failed (server response cannot be verified)", err)
	}

	c.mu.Lock()
	c.sess.mechanism = nil
	c.sess.authenticated = true
	c.sess.saslOffered = false
	c.sess.features = 0
	c.setStateLocked(StateAuthenticated)
	c.mu.Unlock()
	c.logger.WithField("mechanism", mech.Name()).Info("Authenticated")

	if err := c.acquireSend(ctx); err != nil {
		return err
	}
	err = c.transport.ResetStream(ctx)
	c.releaseSend()
	if err != nil {
		return errors.Wrap(err, "unable to restart the stream")
	}
	return nil
}

func (c *Client) handleSASLFailure(mech xmppsasl.Mechanism, failure *xmppcore.SASLFailure) error {
	return c.failAuthentication(AuthFailureServerRejected, mech.Name(),
		"authentication failed ("+failure.Reason()+")", failure)
}

// failAuthentication reports the failure and returns it as the error that
// ends the connection. There is no retry.
func (c *Client) failAuthentication(cause AuthFailureCause, mechanism, reason string, err error) error {
	authErr := &AuthenticationError{
		Cause:     cause,
		Mechanism: mechanism,
		Reason:    reason,
		Err:       err,
	}
	authFailuresTotal.WithLabelValues(cause.String()).Inc()
	c.logger.WithFields(logrus.Fields{"mechanism": mechanism, "cause": cause}).
		Warn(reason)

	c.mu.Lock()
	c.sess.mechanism = nil
	c.topics.authFailures.publish(authErr)
	c.setStateLocked(StateAuthenticationFailure)
	c.mu.Unlock()
	return authErr
}

// RFC 6120  5  STARTTLS Negotiation

func (c *Client) handleTLSProceed(ctx context.Context) error {
	if !c.session().tlsRequested {
		return &ProtocolError{Reason: "unexpected STARTTLS proceed"}
	}
	if err := c.acquireSend(ctx); err != nil {
		return err
	}
	err := c.transport.UpgradeToTLS(ctx)
	c.releaseSend()
	if err != nil {
		return errors.Wrap(err, "unable to upgrade to TLS")
	}
	c.mu.Lock()
	c.sess.secured = true
	c.sess.tlsRequested = false
	c.sess.saslOffered = false
	c.sess.features = 0
	c.mu.Unlock()
	c.logger.Info("Stream secured")
	return nil
}

// RFC 6120  7  Resource Binding

func (c *Client) requestBind(ctx context.Context) error {
	id, err := generateStanzaID()
	if err != nil {
		return errors.Wrap(err, "unable to generate stanza id")
	}
	iq, err := xmppcore.NewBindIQSet(c.cfg.BindResource())
	if err != nil {
		return err
	}
	iq.ID = id
	c.mu.Lock()
	c.sess.bindID = id
	c.mu.Unlock()
	return c.send(ctx, iq)
}

func (c *Client) handleBindResponse(ctx context.Context, iq *xmppcore.ClientIQ) error {
	if c.session().bindID == "" {
		c.logger.WithField("stanza", iq.ID).Warn("Ignoring unsolicited bind response")
		return nil
	}
	if iq.Type == xmppcore.IQTypeError {
		perr := &ProtocolError{Reason: "resource binding rejected"}
		if iq.Error != nil {
			perr.Err = iq.Error
		}
		return perr
	}
	var result xmppcore.BindIQResult
	if err := iq.DecodePayload(&result); err != nil {
		return &ProtocolError{Reason: "malformed bind result", Err: err}
	}
	jid, err := result.BoundJID()
	if err != nil {
		return &ProtocolError{Reason: "malformed bind result", Err: err}
	}

	c.mu.Lock()
	c.sess.jid = jid
	c.sess.bindID = ""
	c.sess.features &^= FeatureResourceBinding
	c.mu.Unlock()
	c.logger.WithField("bound", jid.String()).Info("Resource bound")
	return c.negotiate(ctx)
}

// RFC 3921  3  Session Establishment

func (c *Client) requestSession(ctx context.Context) error {
	id, err := generateStanzaID()
	if err != nil {
		return errors.Wrap(err, "unable to generate stanza id")
	}
	iq, err := xmppcore.NewIQ(xmppcore.IQTypeSet, xmppcore.NewSessionIQSet(c.session().sessionNS))
	if err != nil {
		return err
	}
	iq.ID = id
	c.mu.Lock()
	c.sess.sessionReqID = id
	c.sess.features &^= FeatureSessions
	c.mu.Unlock()
	return c.send(ctx, iq)
}

// handleSessionResponse consumes the result of the session request. The
// client is already open by then; an error is only logged.
func (c *Client) handleSessionResponse(iq *xmppcore.ClientIQ) {
	c.mu.Lock()
	c.sess.sessionReqID = ""
	c.mu.Unlock()
	if iq.Type == xmppcore.IQTypeError {
		entry := c.logger.WithField("stanza", iq.ID)
		if iq.Error != nil {
			entry = entry.WithError(iq.Error)
		}
		entry.Warn("Session establishment rejected")
	}
}
