// Package xmppclient drives one client-side XMPP connection: stream
// negotiation (STARTTLS, SASL, resource binding, session), routing of
// inbound stanzas and the notification topics exposed to applications.
package xmppclient

import (
	"context"
	"encoding/xml"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppim"
	"github.com/exavolt/xmpp-client/pkg/xmppsasl"
)

// session is everything that belongs to one connection. It is written
// only by the processing goroutine and replaced wholesale on close.
type session struct {
	state     State
	features  ServerFeatures
	mechanism xmppsasl.Mechanism
	jid       xmppcore.JID

	secured       bool
	tlsRequested  bool
	saslOffered   bool
	authenticated bool

	streamID     string
	bindID       string
	sessionReqID string
	sessionNS    string
}

type Client struct {
	cfg       *Config
	jid       xmppcore.JID
	creds     xmppsasl.Credentials
	transport Transport
	logger    logrus.FieldLogger

	closeTimeout time.Duration

	// sendSlot serializes writes to the transport; a writer waiting for it
	// gives up with its context.
	sendSlot chan struct{}

	mu      sync.RWMutex
	sess    session
	topics  *topics
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}
}

// DefaultCloseTimeout bounds how long closing waits to write the stream
// close marker before the transport is closed regardless.
const DefaultCloseTimeout = time.Second

type Option func(*Client)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithCloseTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.closeTimeout = timeout
	}
}

func New(cfg *Config, transport Transport, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("xmppclient: config is required")
	}
	if transport == nil {
		return nil, errors.New("xmppclient: transport is required")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	jid, err := cfg.AccountJID()
	if err != nil {
		return nil, err
	}
	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:          cfg,
		jid:          jid,
		creds:        creds,
		transport:    transport,
		logger:       logrus.StandardLogger(),
		closeTimeout: DefaultCloseTimeout,
		sendSlot:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("jid", jid.Bare())
	c.topics = newTopics(cfg.NotificationBuffer, c.logger)
	return c, nil
}

// Open connects the transport and starts the negotiation. It returns once
// the transport is open; progress is reported on the state topic.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.sess.state != StateClosed || c.done != nil {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.lastErr = nil
	c.setStateLocked(StateOpening)
	c.mu.Unlock()

	// Close during the dial aborts it.
	openCtx, cancelOpen := context.WithCancel(ctx)
	stopOpen := context.AfterFunc(loopCtx, cancelOpen)
	err := c.transport.Open(openCtx, c.cfg)
	stopOpen()
	cancelOpen()
	if err == nil && loopCtx.Err() != nil {
		err = context.Canceled
	}
	if err != nil {
		c.logger.WithError(err).Warn("Unable to open transport")
		c.reset()
		close(done)
		return errors.Wrap(err, "unable to open transport")
	}

	c.logger.Info("Transport open")
	go c.run(loopCtx, done)
	return nil
}

// Close ends the stream and the transport. It is safe to call at any time
// and more than once; transport errors are not reported.
func (c *Client) Close() error {
	c.mu.RLock()
	cancel, done := c.cancel, c.done
	c.mu.RUnlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.state
}

// BoundJID is the full JID assigned by the server, empty until bound.
func (c *Client) BoundJID() xmppcore.JID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.jid
}

func (c *Client) Features() ServerFeatures {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.features
}

func (c *Client) StreamID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.streamID
}

// Err returns the error that ended the last connection, if any.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Send writes any wire value once the connection is open.
func (c *Client) Send(ctx context.Context, v interface{}) error {
	if c.State() != StateOpen {
		return ErrNotConnected
	}
	return c.send(ctx, v)
}

// SendIQ sends iq, assigning an id when it has none, and returns the id.
// The response is delivered on the info-query topic.
func (c *Client) SendIQ(ctx context.Context, iq *xmppcore.ClientIQ) (string, error) {
	if iq.ID == "" {
		id, err := generateStanzaID()
		if err != nil {
			return "", errors.Wrap(err, "unable to generate stanza id")
		}
		iq.ID = id
	}
	if err := c.Send(ctx, iq); err != nil {
		return "", err
	}
	return iq.ID, nil
}

func (c *Client) SubscribeState() (<-chan State, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.state.subscribe()
}

// SubscribeRosterPushes delivers the roster changes the server pushes. The
// client acknowledges them itself.
func (c *Client) SubscribeRosterPushes() (<-chan *xmppim.RosterPush, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.rosterPushes.subscribe()
}

func (c *Client) SubscribeAuthFailures() (<-chan *AuthenticationError, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.authFailures.subscribe()
}

// SubscribeInfoQueries delivers the IQs that the client does not handle
// itself: requests from peers and responses to SendIQ.
func (c *Client) SubscribeInfoQueries() (<-chan *xmppcore.ClientIQ, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.infoQueries.subscribe()
}

func (c *Client) SubscribeMessages() (<-chan *xmppim.ClientMessage, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.messages.subscribe()
}

func (c *Client) SubscribePresences() (<-chan *xmppim.ClientPresence, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.presences.subscribe()
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := c.loop(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Connection terminated")
	}
	c.shutdown(err)
}

func (c *Client) loop(ctx context.Context) error {
	elements := c.transport.Elements()
	for {
		select {
		case <-ctx.Done():
			return nil
		case elem, ok := <-elements:
			if !ok {
				return ErrTransportLost
			}
			if err := c.handleElement(ctx, elem); err != nil {
				return err
			}
		}
	}
}

func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if cause != nil {
		c.lastErr = cause
	}
	c.setStateLocked(StateClosing)
	c.mu.Unlock()

	if cause != ErrTransportLost {
		// The peer may already be gone, or a stalled write may hold the
		// send slot; closing the transport below releases it.
		ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
		if err := c.writeRaw(ctx, []byte(xmppcore.StreamCloseMarker)); err != nil {
			c.logger.WithError(err).Debug("Unable to close the stream")
		}
		cancel()
	}
	if err := c.transport.Close(); err != nil {
		c.logger.WithError(err).Debug("Unable to close transport")
	}

	c.reset()
	c.logger.Info("Connection closed")
}

// reset returns the client to Closed and tears down the notification
// topics of the finished connection.
func (c *Client) reset() {
	c.mu.Lock()
	c.sess = session{}
	c.cancel = nil
	c.done = nil
	old := c.topics
	c.topics = newTopics(c.cfg.NotificationBuffer, c.logger)
	stateTransitionsTotal.WithLabelValues(StateClosed.String()).Inc()
	old.state.publish(StateClosed)
	c.mu.Unlock()
	old.close()
}

// setStateLocked must be called with mu held.
func (c *Client) setStateLocked(state State) {
	if c.sess.state == state {
		return
	}
	c.sess.state = state
	stateTransitionsTotal.WithLabelValues(state.String()).Inc()
	c.logger.WithField("state", state).Debug("State changed")
	c.topics.state.publish(state)
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(state)
}

func (c *Client) session() session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

func (c *Client) currentTopics() *topics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics
}

func (c *Client) send(ctx context.Context, v interface{}) error {
	data, err := xml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "unable to marshal element")
	}
	return c.writeRaw(ctx, data)
}

func (c *Client) writeRaw(ctx context.Context, data []byte) error {
	if err := c.acquireSend(ctx); err != nil {
		return err
	}
	defer c.releaseSend()
	if err := c.transport.Send(ctx, data); err != nil {
		return errors.Wrap(err, "unable to send")
	}
	return nil
}

func (c *Client) acquireSend(ctx context.Context) error {
	select {
	case c.sendSlot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting to send")
	}
}

func (c *Client) releaseSend() {
	<-c.sendSlot
}
