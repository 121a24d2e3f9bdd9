package xmppclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

const testTimeout = 2 * time.Second

// fakeTransport lets a test play the server: elements pushed by the test
// are delivered to the client, and everything the client sends is queued
// on sent.
type fakeTransport struct {
	mu       sync.Mutex
	elements chan Element
	sent     chan string
	openErr  error
	// stall makes Send block until the transport is closed, like a write
	// to a peer that stopped reading.
	stall    bool
	closed   chan struct{}
	opens    int
	upgrades int
	resets   int
	closes   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		elements: make(chan Element),
		sent:     make(chan string, 64),
	}
}

func (ft *fakeTransport) Open(ctx context.Context, cfg *Config) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.opens++
	if ft.openErr != nil {
		return ft.openErr
	}
	ft.elements = make(chan Element)
	ft.closed = make(chan struct{})
	return nil
}

func (ft *fakeTransport) Send(ctx context.Context, data []byte) error {
	ft.mu.Lock()
	closed := ft.closes > 0 && ft.closes >= ft.opens
	stall, closedCh := ft.stall, ft.closed
	ft.mu.Unlock()
	if closed {
		return errors.New("transport closed")
	}
	if stall {
		select {
		case <-closedCh:
			return errors.New("transport closed")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ft.sent <- string(data)
	return nil
}

func (ft *fakeTransport) UpgradeToTLS(ctx context.Context) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.upgrades++
	return nil
}

func (ft *fakeTransport) ResetStream(ctx context.Context) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.resets++
	return nil
}

func (ft *fakeTransport) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.closes++
	if ft.closed != nil {
		select {
		case <-ft.closed:
		default:
			close(ft.closed)
		}
	}
	return nil
}

func (ft *fakeTransport) Elements() <-chan Element {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.elements
}

func (ft *fakeTransport) setStall(stall bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.stall = stall
}

func (ft *fakeTransport) counts() (upgrades, resets, closes int) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.upgrades, ft.resets, ft.closes
}

// loseConnection closes the element channel the way a transport reports
// a dropped connection.
func (ft *fakeTransport) loseConnection() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	close(ft.elements)
}

func (ft *fakeTransport) push(t *testing.T, elem Element) {
	t.Helper()
	ft.mu.Lock()
	elements := ft.elements
	ft.mu.Unlock()
	select {
	case elements <- elem:
	case <-time.After(testTimeout):
		t.Fatalf("client did not consume %s", elem.Name.Local)
	}
}

func (ft *fakeTransport) pushStreamOpen(t *testing.T, streamID string) {
	t.Helper()
	ft.push(t, Element{
		Name:        xml.Name{Space: xmppcore.JabberStreamsNS, Local: "stream"},
		Attr:        []xml.Attr{{Name: xml.Name{Local: "id"}, Value: streamID}},
		OpensStream: true,
	})
}

func (ft *fakeTransport) pushRaw(t *testing.T, raw string) {
	t.Helper()
	ft.push(t, rawElement(t, raw))
}

// expect returns the next thing the client sent.
func (ft *fakeTransport) expect(t *testing.T) string {
	t.Helper()
	select {
	case data := <-ft.sent:
		return data
	case <-time.After(testTimeout):
		t.Fatal("client sent nothing")
		return ""
	}
}

func (ft *fakeTransport) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case data := <-ft.sent:
		t.Fatalf("unexpected output: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func rawElement(t *testing.T, raw string) Element {
	t.Helper()
	decoder := xml.NewDecoder(bytes.NewReader([]byte(raw)))
	for {
		token, err := decoder.Token()
		require.NoError(t, err)
		if startElem, ok := token.(xml.StartElement); ok {
			return Element{Name: startElem.Name, Attr: startElem.Attr, Raw: []byte(raw)}
		}
	}
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case state, ok := <-states:
			require.True(t, ok, "state topic closed while waiting for %s", want)
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func collectStates(t *testing.T, states <-chan State) []State {
	t.Helper()
	var seen []State
	deadline := time.After(testTimeout)
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return seen
			}
			seen = append(seen, state)
		case <-deadline:
			t.Fatal("state topic was not closed")
			return seen
		}
	}
}
