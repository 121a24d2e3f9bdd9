// Package xmpptransport provides the TCP implementation of the
// xmppclient.Transport contract: connection setup through SRV records,
// stream headers, STARTTLS and stream restarts.
package xmpptransport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exavolt/xmpp-client/pkg/xmppclient"
	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

// DefaultMaxElementSize bounds inbound elements unless WithMaxElementSize
// says otherwise.
const DefaultMaxElementSize = 1 << 20

var ErrClosed = errors.New("xmpptransport: connection closed")

// TCP carries one XML stream at a time over a TCP connection, upgraded in
// place by STARTTLS. It can be reopened after Close.
type TCP struct {
	logger         logrus.FieldLogger
	dialer         *net.Dialer
	maxElementSize int64

	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	domain    string
	tlsConfig *tls.Config
	elements  chan xmppclient.Element
	resume    chan *elementReader
	closed    chan struct{}
}

var _ xmppclient.Transport = (*TCP)(nil)

type Option func(*TCP)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(t *TCP) {
		t.logger = logger
	}
}

// WithMaxElementSize bounds the size of a single inbound element. Zero
// disables the limit.
func WithMaxElementSize(size int64) Option {
	return func(t *TCP) {
		t.maxElementSize = size
	}
}

func NewTCP(opts ...Option) *TCP {
	t := &TCP{
		logger:         logrus.StandardLogger(),
		dialer:         &net.Dialer{KeepAlive: 30 * time.Second},
		maxElementSize: DefaultMaxElementSize,
		elements:       make(chan xmppclient.Element),
	}
	for _, opt := range opts {
		opt(t)
	}
	close(t.elements)
	return t
}

func (t *TCP) Open(ctx context.Context, cfg *xmppclient.Config) error {
	jid, err := cfg.AccountJID()
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return errors.New("xmpptransport: already open")
	}
	t.mu.Unlock()

	conn, err := t.dial(ctx, cfg, jid.Domain)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.domain = jid.Domain
	t.tlsConfig = &tls.Config{
		ServerName:         cfg.TLSServerName(),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	t.elements = make(chan xmppclient.Element)
	t.resume = make(chan *elementReader, 1)
	t.closed = make(chan struct{})

	if err := t.writeHeaderLocked(); err != nil {
		t.closeLocked()
		close(t.elements)
		return err
	}
	go t.readLoop(newElementReader(t.reader, t.maxElementSize), t.elements, t.resume, t.closed)
	return nil
}

func (t *TCP) dial(ctx context.Context, cfg *xmppclient.Config, domain string) (net.Conn, error) {
	var addrs []string
	if cfg.Host != "" {
		addrs = []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}
	} else {
		records, err := LookupClientSRV(ctx, cfg.DNSServer, domain)
		if err != nil {
			if err == ErrServiceUnavailable {
				return nil, err
			}
			t.logger.WithError(err).WithField("domain", domain).
				Debug("SRV lookup failed; falling back to the domain")
		}
		addrs = append(records, net.JoinHostPort(domain, strconv.Itoa(cfg.Port)))
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := t.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			t.logger.WithField("addr", addr).Debug("Connected")
			return conn, nil
		}
		t.logger.WithError(err).WithField("addr", addr).Debug("Unable to connect")
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "unable to connect")
}

func (t *TCP) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	// A cancelled context expires the deadline so a write to a peer that
	// stopped reading returns.
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetWriteDeadline(time.Now())
		close(interrupted)
	})
	_, err := conn.Write(data)
	if !stop() {
		<-interrupted
	}
	conn.SetWriteDeadline(time.Time{})
	if err != nil && ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "send interrupted")
	}
	return err
}

// UpgradeToTLS runs the TLS handshake over the connection and restarts the
// stream. It must follow a received <proceed/>.
func (t *TCP) UpgradeToTLS(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrClosed
	}
	tlsConn := tls.Client(t.conn, t.tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return errors.Wrap(err, "TLS handshake failed")
	}
	t.conn = tlsConn
	t.reader = bufio.NewReader(tlsConn)
	return t.restartLocked()
}

// ResetStream restarts the stream after authentication (RFC 6120  6.4.6).
func (t *TCP) ResetStream(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrClosed
	}
	return t.restartLocked()
}

func (t *TCP) restartLocked() error {
	if err := t.writeHeaderLocked(); err != nil {
		return err
	}
	t.resume <- newElementReader(t.reader, t.maxElementSize)
	return nil
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *TCP) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	close(t.closed)
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	return err
}

// Elements is closed when the connection is lost or closed.
func (t *TCP) Elements() <-chan xmppclient.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elements
}

func (t *TCP) writeHeaderLocked() error {
	_, err := fmt.Fprintf(t.conn, xml.Header+
		"<stream:stream to='%s' xmlns='%s'"+
		" xmlns:stream='%s' version='1.0'>",
		xmlEscapeString(t.domain), xmppcore.JabberClientNS, xmppcore.JabberStreamsNS)
	if err != nil {
		return errors.Wrap(err, "unable to write stream header")
	}
	return nil
}

// readLoop delivers elements until the connection ends. After <proceed/>
// and <success/> it stops reading until the stream is restarted, since the
// bytes that follow belong to a new stream (or to the TLS handshake).
func (t *TCP) readLoop(er *elementReader, elements chan<- xmppclient.Element, resume <-chan *elementReader, closed <-chan struct{}) {
	defer close(elements)
	for {
		elem, err := er.next()
		if err != nil {
			select {
			case <-closed:
			default:
				if err == io.EOF {
					t.logger.Info("Server closed the connection")
				} else {
					t.logger.WithError(err).Warn("Unable to read from the stream")
				}
			}
			return
		}
		select {
		case elements <- elem:
		case <-closed:
			return
		}
		switch elem.ElementName() {
		case xmppcore.TLSProceedElementName, xmppcore.SASLSuccessElementName:
			select {
			case er = <-resume:
			case <-closed:
				return
			}
		}
	}
}

func xmlEscapeString(s string) string {
	var b bytes.Buffer
	xml.Escape(&b, []byte(s))
	return b.String()
}
