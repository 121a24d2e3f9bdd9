package xmppim

import (
	"encoding/xml"

	"github.com/exavolt/xmpp-client/pkg/xmppcaps"
	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

const ClientPresenceElementName = xmppcore.JabberClientNS + " presence"

// RFC 6121  4.7.1
const (
	PresenceTypeError        = "error"
	PresenceTypeProbe        = "probe"
	PresenceTypeSubscribe    = "subscribe"
	PresenceTypeSubscribed   = "subscribed"
	PresenceTypeUnavailable  = "unavailable"
	PresenceTypeUnsubscribe  = "unsubscribe"
	PresenceTypeUnsubscribed = "unsubscribed"
)

// RFC 6121  4.7.2.1
const (
	PresenceShowAway = "away"
	PresenceShowChat = "chat"
	PresenceShowDND  = "dnd"
	PresenceShowXA   = "xa"
)

// RFC 6121  4.7.
type ClientPresence struct {
	XMLName xml.Name `xml:"jabber:client presence"`
	xmppcore.StanzaCommonAttributes
	Type     string                `xml:"type,attr,omitempty"`
	Show     string                `xml:"show,omitempty"`
	Status   string                `xml:"status,omitempty"`
	Priority int8                  `xml:"priority,omitempty"`
	Error    *xmppcore.StanzaError `xml:",omitempty"`
	CapsC    *xmppcaps.C           `xml:",omitempty"`
}
