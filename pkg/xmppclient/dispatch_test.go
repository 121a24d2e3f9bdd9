package xmppclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppim"
)

func TestDecodeElement(t *testing.T) {
	cases := []struct {
		raw  string
		want interface{}
	}{
		{`<features xmlns="http://etherx.jabber.org/streams"/>`, &xmppcore.StreamFeatures{}},
		{`<proceed xmlns="urn:ietf:params:xml:ns:xmpp-tls"/>`, &xmppcore.TLSProceed{}},
		{`<failure xmlns="urn:ietf:params:xml:ns:xmpp-tls"/>`, &xmppcore.TLSFailure{}},
		{`<failure xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><aborted/></failure>`, &xmppcore.SASLFailure{}},
		{`<challenge xmlns="urn:ietf:params:xml:ns:xmpp-sasl">AAAA</challenge>`, &xmppcore.SASLChallenge{}},
		{`<iq xmlns="jabber:client" type="get" id="1"/>`, &xmppcore.ClientIQ{}},
		{`<message xmlns="jabber:client"/>`, &xmppim.ClientMessage{}},
		{`<presence xmlns="jabber:client"/>`, &xmppim.ClientPresence{}},
	}
	for _, tc := range cases {
		v, err := decodeElement(rawElement(t, tc.raw))
		require.NoError(t, err, tc.raw)
		assert.IsType(t, tc.want, v, tc.raw)
	}

	v, err := decodeElement(rawElement(t, `<iq xmlns="jabber:server"/>`))
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestPingAnsweredOnce(t *testing.T) {
	c, ft := newTestClient(t, testConfig())
	states, _ := c.SubscribeState()
	queries, _ := c.SubscribeInfoQueries()

	authenticatePlain(t, c, ft)
	waitState(t, states, StateOpen)

	ft.pushRaw(t, `<iq xmlns="jabber:client" type="get" id="ping-1"`+
		` from="example.com" to="juliet@example.com/balcony"><ping xmlns="urn:xmpp:ping"/></iq>`)
	assert.Equal(t,
		`<iq xmlns="jabber:client" id="ping-1" from="juliet@example.com/balcony" to="example.com" type="result"></iq>`,
		ft.expect(t))
	ft.expectNothing(t)

	// a ping result is neither answered nor published
	ft.pushRaw(t, `<iq xmlns="jabber:client" type="result" id="ping-2"><ping xmlns="urn:xmpp:ping"/></iq>`)
	ft.expectNothing(t)

	ft.pushRaw(t, `<iq xmlns="jabber:client" type="get" id="v1" from="romeo@example.net/orchard">`+
		`<query xmlns="jabber:iq:version"/></iq>`)

	// The bind result and the pings never reach the topic; the first
	// published IQ is the version query.
	select {
	case iq := <-queries:
		require.NotNil(t, iq)
		assert.Equal(t, "v1", iq.ID)
		assert.Equal(t, "jabber:iq:version query", iq.PayloadElementName())
	case <-time.After(testTimeout):
		t.Fatal("info query not published")
	}
}

func TestClientPing(t *testing.T) {
	c, ft := newTestClient(t, testConfig())
	states, _ := c.SubscribeState()
	queries, _ := c.SubscribeInfoQueries()

	_, err := c.Ping(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	authenticatePlain(t, c, ft)
	waitState(t, states, StateOpen)

	id, err := c.Ping(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t,
		`<iq xmlns="jabber:client" id="`+id+`" type="get"><ping xmlns="urn:xmpp:ping"></ping></iq>`,
		ft.expect(t))

	ft.pushRaw(t, `<iq xmlns="jabber:client" type="result" id="`+id+`" from="example.com"/>`)
	select {
	case iq := <-queries:
		assert.Equal(t, id, iq.ID)
		assert.Equal(t, xmppcore.IQTypeResult, iq.Type)
	case <-time.After(testTimeout):
		t.Fatal("ping reply not published")
	}
}

func TestMessagesAndPresencesPublished(t *testing.T) {
	c, ft := newTestClient(t, testConfig())
	states, _ := c.SubscribeState()
	messages, _ := c.SubscribeMessages()
	presences, _ := c.SubscribePresences()

	authenticatePlain(t, c, ft)
	waitState(t, states, StateOpen)

	// malformed stanzas are dropped without closing the connection
	ft.pushRaw(t, `<message xmlns="jabber:client" from="@example.com"><body>x</body></message>`)
	ft.pushRaw(t, `<message xmlns="jabber:client" type="chat" from="romeo@example.net/orchard">`+
		`<body>Neither, fair saint, if either thee dislike.</body></message>`)
	ft.pushRaw(t, `<presence xmlns="jabber:client" from="romeo@example.net/orchard"><show>away</show></presence>`)

	select {
	case msg := <-messages:
		require.NotNil(t, msg)
		assert.Equal(t, xmppim.MessageTypeChat, msg.Type)
		assert.Equal(t, "Neither, fair saint, if either thee dislike.", msg.Body)
	case <-time.After(testTimeout):
		t.Fatal("message not published")
	}
	select {
	case presence := <-presences:
		require.NotNil(t, presence)
		assert.Equal(t, xmppim.PresenceShowAway, presence.Show)
	case <-time.After(testTimeout):
		t.Fatal("presence not published")
	}
	assert.Equal(t, StateOpen, c.State())
}

func TestSessionResultNotPublished(t *testing.T) {
	c, ft := newTestClient(t, testConfig())
	states, _ := c.SubscribeState()
	queries, _ := c.SubscribeInfoQueries()

	require.NoError(t, c.Open(context.Background()))
	ft.pushStreamOpen(t, "s1")
	ft.pushRaw(t, featuresPlain)
	ft.expect(t)
	ft.pushRaw(t, `<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`)
	ft.pushStreamOpen(t, "s2")
	ft.pushRaw(t, `<features xmlns="http://etherx.jabber.org/streams">`+
		`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/>`+
		`<session xmlns="jabber:iq:session"/></features>`)
	bindIQ := decodeSent[xmppcore.ClientIQ](t, ft.expect(t))
	ft.pushRaw(t, `<iq xmlns="jabber:client" type="result" id="`+bindIQ.ID+`">`+
		`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><jid>juliet@example.com/balcony</jid></bind></iq>`)
	sessionIQ := decodeSent[xmppcore.ClientIQ](t, ft.expect(t))
	assert.Equal(t, xmppcore.SessionLegacySessionElementName, sessionIQ.PayloadElementName())
	waitState(t, states, StateOpen)

	ft.pushRaw(t, `<iq xmlns="jabber:client" type="result" id="`+sessionIQ.ID+`"/>`)
	ft.pushRaw(t, `<iq xmlns="jabber:client" type="result" id="other"/>`)
	select {
	case iq := <-queries:
		require.NotNil(t, iq)
		assert.Equal(t, "other", iq.ID)
	case <-time.After(testTimeout):
		t.Fatal("info query not published")
	}
}

func TestOptionalSessionSkipped(t *testing.T) {
	c, ft := newTestClient(t, testConfig())
	states, _ := c.SubscribeState()

	require.NoError(t, c.Open(context.Background()))
	ft.pushStreamOpen(t, "s1")
	ft.pushRaw(t, featuresPlain)
	ft.expect(t)
	ft.pushRaw(t, `<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`)
	ft.pushStreamOpen(t, "s2")
	ft.pushRaw(t, `<features xmlns="http://etherx.jabber.org/streams">`+
		`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/>`+
		`<session xmlns="urn:ietf:params:xml:ns:xmpp-session"><optional/></session></features>`)
	bindIQ := decodeSent[xmppcore.ClientIQ](t, ft.expect(t))
	ft.pushRaw(t, `<iq xmlns="jabber:client" type="result" id="`+bindIQ.ID+`">`+
		`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><jid>juliet@example.com/balcony</jid></bind></iq>`)

	waitState(t, states, StateOpen)
	ft.expectNothing(t)
}

func TestRosterPushAcknowledged(t *testing.T) {
	c, ft := newTestClient(t, testConfig())
	states, _ := c.SubscribeState()
	pushes, _ := c.SubscribeRosterPushes()
	queries, _ := c.SubscribeInfoQueries()

	authenticatePlain(t, c, ft)
	waitState(t, states, StateOpen)

	ft.pushRaw(t, `<iq xmlns="jabber:client" type="set" id="a78b4q6ha463" to="juliet@example.com/balcony">`+
		`<query xmlns="jabber:iq:roster" ver="ver14">`+
		`<item jid="nurse@example.com" name="Nurse" subscription="none"><group>Servants</group></item>`+
		`</query></iq>`)
	assert.Equal(t,
		`<iq xmlns="jabber:client" id="a78b4q6ha463" from="juliet@example.com/balcony" type="result"></iq>`,
		ft.expect(t))

	select {
	case push := <-pushes:
		require.NotNil(t, push)
		assert.Equal(t, "ver14", push.Ver)
		assert.Equal(t, "nurse@example.com", push.Item.JID.String())
		assert.Equal(t, []string{"Servants"}, push.Item.Group)
	case <-time.After(testTimeout):
		t.Fatal("roster push not published")
	}

	// a push from another entity is neither answered nor published
	ft.pushRaw(t, `<iq xmlns="jabber:client" type="set" id="spoof1" from="eve@example.org/pda">`+
		`<query xmlns="jabber:iq:roster"><item jid="eve@example.org"/></query></iq>`)
	ft.expectNothing(t)

	ft.pushRaw(t, `<iq xmlns="jabber:client" type="set" id="bad1" from="juliet@example.com">`+
		`<query xmlns="jabber:iq:roster"><item jid="a@example.com"/><item jid="b@example.com"/></query></iq>`)
	resp := decodeSent[xmppcore.ClientIQ](t, ft.expect(t))
	assert.Equal(t, "bad1", resp.ID)
	assert.Equal(t, xmppcore.IQTypeError, resp.Type)
	require.NotNil(t, resp.Error)
	assert.Equal(t, xmppcore.StanzaErrorConditionBadRequest, resp.Error.Condition)

	select {
	case push := <-pushes:
		t.Fatalf("unexpected roster push %v", push)
	case iq := <-queries:
		t.Fatalf("roster push published as info query %s", iq.ID)
	case <-time.After(50 * time.Millisecond):
	}
}
