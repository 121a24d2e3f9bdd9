package xmppcore

import (
	"encoding/xml"
)

//NOTE: session is not listed in the new XMPP Core (RFC 6120). It is still
// announced by servers for RFC 3921 clients.

const (
	SessionNS       = "urn:ietf:params:xml:ns:xmpp-session"
	SessionLegacyNS = "jabber:iq:session"
)

const (
	SessionSessionElementName       = SessionNS + " session"
	SessionLegacySessionElementName = SessionLegacyNS + " session"
)

type SessionFeature struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-session session"`
	Optional *string  `xml:"optional,omitempty"`
}

type SessionLegacy struct {
	XMLName xml.Name `xml:"jabber:iq:session session"`
}

// SessionIQSet is the session establishment request. XMLName is filled from
// the namespace the server announced.
type SessionIQSet struct {
	XMLName xml.Name
}

func NewSessionIQSet(ns string) *SessionIQSet {
	return &SessionIQSet{XMLName: xml.Name{Space: ns, Local: "session"}}
}
