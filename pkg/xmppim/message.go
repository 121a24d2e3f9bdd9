package xmppim

import (
	"encoding/xml"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

const (
	ClientMessageElementName        = xmppcore.JabberClientNS + " message"
	ClientMessageBodyElementName    = xmppcore.JabberClientNS + " body"
	ClientMessageSubjectElementName = xmppcore.JabberClientNS + " subject"
	ClientMessageThreadElementName  = xmppcore.JabberClientNS + " thread"
)

// RFC 6121 section 5.2.2
const (
	MessageTypeChat      = "chat"
	MessageTypeError     = "error"
	MessageTypeGroupChat = "groupchat"
	MessageTypeHeadline  = "headline"
	MessageTypeNormal    = "normal"
)

type ClientMessage struct {
	XMLName xml.Name `xml:"jabber:client message"`
	xmppcore.StanzaCommonAttributes
	Type    string                `xml:"type,attr,omitempty"` // Any of MessageType*
	Subject string                `xml:"subject,omitempty"`
	Body    string                `xml:"body,omitempty"`
	Thread  *ClientMessageThread  `xml:",omitempty"`
	Error   *xmppcore.StanzaError `xml:",omitempty"`
}

type ClientMessageThread struct {
	XMLName xml.Name `xml:"jabber:client thread"`
	Parent  string   `xml:"parent,attr,omitempty"`
	ID      string   `xml:",chardata"`
}
