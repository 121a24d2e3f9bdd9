package xmppcore

import (
	"encoding/xml"
)

// RFC 6120  5  STARTTLS Negotiation

const TLSNS = "urn:ietf:params:xml:ns:xmpp-tls"

const (
	TLSProceedElementName = TLSNS + " proceed"
	TLSFailureElementName = TLSNS + " failure"
)

type TLSStartTLS struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-tls starttls"`
	Required *string  `xml:"required,omitempty"`
}

type TLSProceed struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-tls proceed"`
}

func (*TLSProceed) fragment() {}

type TLSFailure struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-tls failure"`
}

func (*TLSFailure) fragment() {}
