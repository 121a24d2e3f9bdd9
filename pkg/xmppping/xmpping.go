// Package xmppping implements XEP-0199 XMPP Ping.
package xmppping

import (
	"encoding/xml"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

const NS = "urn:xmpp:ping"

const ElementName = NS + " ping"

type Ping struct {
	XMLName xml.Name `xml:"urn:xmpp:ping ping"`
}

// IsRequest reports whether iq is a ping that has to be answered.
func IsRequest(iq *xmppcore.ClientIQ) bool {
	return iq.Type == xmppcore.IQTypeGet && iq.PayloadElementName() == ElementName
}

// NewRequest builds a ping addressed to to. A nil to pings the server
// (XEP-0199  4.1).
func NewRequest(to *xmppcore.JID) (*xmppcore.ClientIQ, error) {
	iq, err := xmppcore.NewIQ(xmppcore.IQTypeGet, &Ping{})
	if err != nil {
		return nil, err
	}
	iq.To = to
	return iq, nil
}
