package xmpptransport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/xml"
	"io"
	"math/big"
	"net"
	"strconv"
	"testing"
	"time"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exavolt/xmpp-client/pkg/xmppclient"
	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

const testTimeout = 2 * time.Second

func header(streamID string) string {
	return `<?xml version='1.0'?>` +
		`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'` +
		` id='` + streamID + `' from='example.com' version='1.0'>`
}

// startServer accepts a single connection and runs serve on it.
func startServer(t *testing.T, serve func(conn net.Conn)) *xmppclient.Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}()
	return &xmppclient.Config{
		JID:      "juliet@example.com",
		Password: "r0m30",
		Host:     "127.0.0.1",
		Port:     ln.Addr().(*net.TCPAddr).Port,
	}
}

func newTestTCP() *TCP {
	logger, _ := logrustest.NewNullLogger()
	return NewTCP(WithLogger(logger))
}

// readClientHeader consumes the client's stream header and returns its
// 'to' attribute.
func readClientHeader(dec *xml.Decoder) (string, error) {
	for {
		token, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := token.(xml.StartElement); ok {
			if start.Name.Space != xmppcore.JabberStreamsNS || start.Name.Local != "stream" {
				return "", io.ErrUnexpectedEOF
			}
			for _, attr := range start.Attr {
				if attr.Name.Local == "to" {
					return attr.Value, nil
				}
			}
			return "", nil
		}
	}
}

// readClientElement consumes one top-level element and returns its name.
func readClientElement(dec *xml.Decoder) (string, error) {
	for {
		token, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := token.(xml.StartElement); ok {
			if err := dec.Skip(); err != nil {
				return "", err
			}
			return start.Name.Space + " " + start.Name.Local, nil
		}
	}
}

func nextElement(t *testing.T, elements <-chan xmppclient.Element) xmppclient.Element {
	t.Helper()
	select {
	case elem, ok := <-elements:
		require.True(t, ok, "element channel closed")
		return elem
	case <-time.After(testTimeout):
		t.Fatal("no element received")
		return xmppclient.Element{}
	}
}

func expectClosed(t *testing.T, elements <-chan xmppclient.Element) {
	t.Helper()
	select {
	case elem, ok := <-elements:
		require.False(t, ok, "unexpected element %s", elem.Name.Local)
	case <-time.After(testTimeout):
		t.Fatal("element channel not closed")
	}
}

func TestTCPStreamRestart(t *testing.T) {
	serverErr := make(chan error, 1)
	cfg := startServer(t, func(conn net.Conn) {
		serverErr <- func() error {
			dec := xml.NewDecoder(conn)
			to, err := readClientHeader(dec)
			if err != nil {
				return err
			}
			if to != "example.com" {
				return io.ErrUnexpectedEOF
			}
			io.WriteString(conn, header("s1")+
				`<stream:features><mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'>`+
				`<mechanism>PLAIN</mechanism></mechanisms></stream:features>`)
			if _, err := readClientElement(dec); err != nil {
				return err
			}
			io.WriteString(conn, `<success xmlns='urn:ietf:params:xml:ns:xmpp-sasl'/>`)

			dec = xml.NewDecoder(conn)
			if _, err := readClientHeader(dec); err != nil {
				return err
			}
			io.WriteString(conn, header("s2")+
				`<stream:features><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'/></stream:features>`+
				`<iq type='result' id='b1'/></stream:stream>`)
			return nil
		}()
	})

	tr := newTestTCP()
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx, cfg))
	defer tr.Close()
	elements := tr.Elements()

	elem := nextElement(t, elements)
	assert.True(t, elem.OpensStream)
	assert.Equal(t, "s1", elem.AttrValue("id"))
	elem = nextElement(t, elements)
	assert.Equal(t, xmppcore.StreamFeaturesElementName, elem.ElementName())

	require.NoError(t, tr.Send(ctx, []byte(`<auth xmlns='urn:ietf:params:xml:ns:xmpp-sasl' mechanism='PLAIN'>AGp1bGlldAByMG0zMA==</auth>`)))
	elem = nextElement(t, elements)
	assert.Equal(t, xmppcore.SASLSuccessElementName, elem.ElementName())

	require.NoError(t, tr.ResetStream(ctx))
	elem = nextElement(t, elements)
	assert.True(t, elem.OpensStream)
	assert.Equal(t, "s2", elem.AttrValue("id"))
	elem = nextElement(t, elements)
	var features xmppcore.StreamFeatures
	require.NoError(t, xml.Unmarshal(elem.Raw, &features))
	assert.True(t, features.SupportsResourceBinding())

	elem = nextElement(t, elements)
	var iq xmppcore.ClientIQ
	require.NoError(t, xml.Unmarshal(elem.Raw, &iq))
	assert.Equal(t, "b1", iq.ID)
	assert.Equal(t, xmppcore.IQTypeResult, iq.Type)

	elem = nextElement(t, elements)
	assert.True(t, elem.ClosesStream)
	expectClosed(t, elements)

	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("server did not finish")
	}
}

func selfSignedCertificate(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.com"},
		DNSNames:     []string{"example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestTCPUpgradeToTLS(t *testing.T) {
	cert := selfSignedCertificate(t)
	serverErr := make(chan error, 1)
	cfg := startServer(t, func(conn net.Conn) {
		serverErr <- func() error {
			dec := xml.NewDecoder(conn)
			if _, err := readClientHeader(dec); err != nil {
				return err
			}
			io.WriteString(conn, header("plain")+
				`<stream:features><starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'><required/></starttls></stream:features>`)
			if _, err := readClientElement(dec); err != nil {
				return err
			}
			io.WriteString(conn, `<proceed xmlns='urn:ietf:params:xml:ns:xmpp-tls'/>`)

			tlsConn := tls.Server(conn, &tls.Config{Certificates: []tls.Certificate{cert}})
			if err := tlsConn.Handshake(); err != nil {
				return err
			}
			dec = xml.NewDecoder(tlsConn)
			if _, err := readClientHeader(dec); err != nil {
				return err
			}
			io.WriteString(tlsConn, header("secure")+
				`<stream:features><mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'>`+
				`<mechanism>SCRAM-SHA-1</mechanism></mechanisms></stream:features>`)
			// hold the connection until the client goes away
			readClientElement(dec)
			return nil
		}()
	})
	cfg.InsecureSkipVerify = true

	tr := newTestTCP()
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx, cfg))
	elements := tr.Elements()

	nextElement(t, elements)
	elem := nextElement(t, elements)
	var features xmppcore.StreamFeatures
	require.NoError(t, xml.Unmarshal(elem.Raw, &features))
	require.True(t, features.SecureConnectionRequired())

	require.NoError(t, tr.Send(ctx, []byte(`<starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'/>`)))
	elem = nextElement(t, elements)
	assert.Equal(t, xmppcore.TLSProceedElementName, elem.ElementName())

	require.NoError(t, tr.UpgradeToTLS(ctx))
	elem = nextElement(t, elements)
	assert.True(t, elem.OpensStream)
	assert.Equal(t, "secure", elem.AttrValue("id"))
	elem = nextElement(t, elements)
	assert.Equal(t, xmppcore.StreamFeaturesElementName, elem.ElementName())

	require.NoError(t, tr.Close())
	expectClosed(t, elements)
	assert.ErrorIs(t, tr.Send(ctx, []byte(" ")), ErrClosed)

	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("server did not finish")
	}
}

func TestTCPSendToStalledPeer(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cfg := startServer(t, func(conn net.Conn) {
		dec := xml.NewDecoder(conn)
		if _, err := readClientHeader(dec); err != nil {
			return
		}
		io.WriteString(conn, header("s1"))
		// stop reading
		<-release
	})

	tr := newTestTCP()
	require.NoError(t, tr.Open(context.Background(), cfg))
	defer tr.Close()
	nextElement(t, tr.Elements())

	payload := make([]byte, 64<<20)
	ctx, cancel := context.WithCancel(context.Background())
	sendErr := make(chan error, 1)
	go func() { sendErr <- tr.Send(ctx, payload) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-sendErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(testTimeout):
		t.Fatal("cancelled send did not return")
	}

	go func() { sendErr <- tr.Send(context.Background(), payload) }()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, tr.Close())
	select {
	case err := <-sendErr:
		assert.Error(t, err)
	case <-time.After(testTimeout):
		t.Fatal("close did not release the send")
	}
}

func TestTCPOpenRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tr := newTestTCP()
	err = tr.Open(context.Background(), &xmppclient.Config{
		JID:      "juliet@example.com",
		Password: "r0m30",
		Host:     "127.0.0.1",
		Port:     port,
	})
	assert.Error(t, err)
	assert.NoError(t, tr.Close())
}

func TestTCPOpenThroughSRV(t *testing.T) {
	cfg := startServer(t, func(conn net.Conn) {
		dec := xml.NewDecoder(conn)
		if _, err := readClientHeader(dec); err != nil {
			return
		}
		io.WriteString(conn, header("srv"))
		readClientElement(dec)
	})
	port := cfg.Port
	cfg.Host = ""
	cfg.DNSServer = startDNSServer(t, srvHandler(t, srvRecord(0, 0, port, "127.0.0.1.")))

	tr := newTestTCP()
	require.NoError(t, tr.Open(context.Background(), cfg))
	defer tr.Close()
	elem := nextElement(t, tr.Elements())
	assert.True(t, elem.OpensStream)
	assert.Equal(t, "srv", elem.AttrValue("id"))
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), tr.conn.RemoteAddr().String())
}
