// Package xmppcore contains the client-side wire types of XMPP Core (RFC 6120)
package xmppcore

const (
	StreamsNS       = "urn:ietf:params:xml:ns:xmpp-streams"
	JabberStreamsNS = "http://etherx.jabber.org/streams"
	JabberClientNS  = "jabber:client"
	XMLNS           = "http://www.w3.org/XML/1998/namespace"
)
