package xmppcore

import (
	"encoding/xml"

	"github.com/pkg/errors"
)

// RFC 6120  7. Resource Binding

const BindNS = "urn:ietf:params:xml:ns:xmpp-bind"

const BindBindElementName = BindNS + " bind"

// ErrBindNoJID is returned for a bind result without a usable address.
var ErrBindNoJID = errors.New("bind result carries no jid")

// BindBind is the feature advertised in <stream:features/>.
type BindBind struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
}

type BindIQSet struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Resource string   `xml:"resource,omitempty"`
}

// NewBindIQSet builds the bind request. With an empty resource the
// server generates one (RFC 6120  7.6).
func NewBindIQSet(resource string) (*ClientIQ, error) {
	return NewIQ(IQTypeSet, &BindIQSet{Resource: resource})
}

type BindIQResult struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	JID     *JID     `xml:"jid"`
}

// BoundJID returns the address the server assigned to the session.
func (r *BindIQResult) BoundJID() (JID, error) {
	if r.JID == nil || r.JID.IsEmpty() {
		return JID{}, ErrBindNoJID
	}
	return *r.JID, nil
}
