package xmppim

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exavolt/xmpp-client/pkg/xmppcaps"
	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

func TestClientMessageDecoding(t *testing.T) {
	var msg ClientMessage
	err := xml.Unmarshal([]byte(`<message xmlns="jabber:client" type="chat" id="m1"`+
		` from="romeo@example.net/orchard" to="juliet@example.com/balcony">`+
		`<body>Art thou not Romeo, and a Montague?</body><thread>e0ffe42b</thread></message>`), &msg)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeChat, msg.Type)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "romeo@example.net/orchard", msg.From.String())
	assert.Equal(t, "Art thou not Romeo, and a Montague?", msg.Body)
	require.NotNil(t, msg.Thread)
	assert.Equal(t, "e0ffe42b", msg.Thread.ID)
	assert.Equal(t, &msg.StanzaCommonAttributes, msg.StanzaAttributes())
}

func TestClientPresenceWithCaps(t *testing.T) {
	presence := ClientPresence{
		CapsC: &xmppcaps.C{Hash: "sha-1", Node: "https://example.org/client", Ver: "QgayPKawpkPSDYmwT/WM94uAlu0="},
	}
	xmlBuf, err := xml.Marshal(presence)
	require.NoError(t, err)
	assert.Equal(t,
		`<presence xmlns="jabber:client"><c xmlns="http://jabber.org/protocol/caps"`+
			` hash="sha-1" node="https://example.org/client" ver="QgayPKawpkPSDYmwT/WM94uAlu0="></c></presence>`,
		string(xmlBuf))
}

func TestRosterResultDecoding(t *testing.T) {
	var iq xmppcore.ClientIQ
	err := xml.Unmarshal([]byte(`<iq xmlns="jabber:client" type="result" id="r1">`+
		`<query xmlns="jabber:iq:roster" ver="ver11">`+
		`<item jid="romeo@example.net" name="Romeo" subscription="both"><group>Friends</group></item>`+
		`<item jid="nurse@example.com" subscription="none" ask="subscribe"/>`+
		`</query></iq>`), &iq)
	require.NoError(t, err)
	assert.Equal(t, RosterQueryElementName, iq.PayloadElementName())

	var roster RosterIQResult
	require.NoError(t, iq.DecodePayload(&roster))
	assert.Equal(t, "ver11", roster.Ver)
	require.Len(t, roster.Item, 2)
	assert.Equal(t, "romeo@example.net", roster.Item[0].JID.String())
	assert.Equal(t, []string{"Friends"}, roster.Item[0].Group)
	assert.False(t, roster.Item[0].PendingOut())
	assert.Equal(t, RosterItemSubscriptionNone, roster.Item[1].Subscription)
	assert.True(t, roster.Item[1].PendingOut())
}

func TestNewRosterRequest(t *testing.T) {
	iq, err := NewRosterRequest("")
	require.NoError(t, err)
	iq.ID = "r1"
	xmlBuf, err := xml.Marshal(iq)
	require.NoError(t, err)
	assert.Equal(t,
		`<iq xmlns="jabber:client" id="r1" type="get"><query xmlns="jabber:iq:roster"></query></iq>`,
		string(xmlBuf))

	iq, err = NewRosterRequest("ver14")
	require.NoError(t, err)
	assert.Equal(t, `<query xmlns="jabber:iq:roster" ver="ver14"></query>`, string(iq.Payload))
}

func mustJID(t *testing.T, s string) xmppcore.JID {
	t.Helper()
	jid, err := xmppcore.ParseJID(s)
	require.NoError(t, err)
	return jid
}

func TestNewRosterSet(t *testing.T) {
	item := RosterItem{
		JID:          mustJID(t, "nurse@example.com"),
		Name:         "Nurse",
		Subscription: RosterItemSubscriptionBoth,
		Ask:          RosterItemAskSubscribe,
		Group:        []string{"Servants"},
	}
	iq, err := NewRosterSet(item)
	require.NoError(t, err)
	assert.Equal(t, xmppcore.IQTypeSet, iq.Type)

	var query RosterIQSet
	require.NoError(t, iq.DecodePayload(&query))
	require.Len(t, query.Item, 1)
	assert.Equal(t, "nurse@example.com", query.Item[0].JID.String())
	assert.Equal(t, "Nurse", query.Item[0].Name)
	assert.Equal(t, []string{"Servants"}, query.Item[0].Group)
	assert.Empty(t, query.Item[0].Subscription)
	assert.Empty(t, query.Item[0].Ask)

	_, err = NewRosterSet(RosterItem{Name: "Nobody"})
	assert.ErrorIs(t, err, ErrRosterItemNoJID)
}

func TestNewRosterRemove(t *testing.T) {
	iq, err := NewRosterRemove(mustJID(t, "nurse@example.com"))
	require.NoError(t, err)
	var query RosterIQSet
	require.NoError(t, iq.DecodePayload(&query))
	require.Len(t, query.Item, 1)
	assert.True(t, query.Item[0].Removed())
	assert.Equal(t, "nurse@example.com", query.Item[0].JID.String())

	_, err = NewRosterRemove(xmppcore.JID{})
	assert.ErrorIs(t, err, ErrRosterItemNoJID)
}

func TestRosterItemWithGroup(t *testing.T) {
	item := RosterItem{JID: mustJID(t, "romeo@example.net"), Group: []string{"Friends"}}
	moved := item.WithGroup("Lovers")
	assert.Equal(t, []string{"Friends", "Lovers"}, moved.Group)
	assert.Equal(t, []string{"Friends"}, item.Group)
	assert.True(t, moved.InGroup("Lovers"))
	assert.Equal(t, []string{"Friends"}, item.WithGroup("Friends").Group)
}

func TestRosterPush(t *testing.T) {
	account := mustJID(t, "juliet@example.com/balcony")
	push := func(from string) *xmppcore.ClientIQ {
		var iq xmppcore.ClientIQ
		require.NoError(t, xml.Unmarshal([]byte(`<iq xmlns="jabber:client" type="set" id="a78b4q6ha463"`+from+`>`+
			`<query xmlns="jabber:iq:roster" ver="ver13"><item jid="nurse@example.com" subscription="remove"/></query></iq>`), &iq))
		return &iq
	}

	assert.True(t, IsRosterPush(push(""), account))
	assert.True(t, IsRosterPush(push(` from="juliet@example.com"`), account))
	assert.False(t, IsRosterPush(push(` from="eve@example.org"`), account))

	parsed, err := ParseRosterPush(push(""))
	require.NoError(t, err)
	assert.Equal(t, "ver13", parsed.Ver)
	assert.Equal(t, "nurse@example.com", parsed.Item.JID.String())
	assert.True(t, parsed.Item.Removed())

	var twoItems xmppcore.ClientIQ
	require.NoError(t, xml.Unmarshal([]byte(`<iq xmlns="jabber:client" type="set" id="p2">`+
		`<query xmlns="jabber:iq:roster"><item jid="a@example.com"/><item jid="b@example.com"/></query></iq>`), &twoItems))
	_, err = ParseRosterPush(&twoItems)
	assert.ErrorIs(t, err, ErrRosterPushMalformed)
}
