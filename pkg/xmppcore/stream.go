package xmppcore

import (
	"encoding/xml"
)

const (
	StreamStreamElementName   = JabberStreamsNS + " stream"
	StreamFeaturesElementName = JabberStreamsNS + " features"
	StreamErrorElementName    = JabberStreamsNS + " error"
)

// StreamCloseMarker is the closing tag of the client's stream.
const StreamCloseMarker = "</stream:stream>"

// RFC 6120  4.3.2  Streams Features Format

// StreamFeatures is what the server announces after every stream (re)start.
type StreamFeatures struct {
	XMLName    xml.Name         `xml:"http://etherx.jabber.org/streams features"`
	StartTLS   *TLSStartTLS     `xml:"urn:ietf:params:xml:ns:xmpp-tls starttls,omitempty"`
	Mechanisms *SASLMechanisms  `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms,omitempty"`
	Bind       *BindBind        `xml:"urn:ietf:params:xml:ns:xmpp-bind bind,omitempty"`
	Session    *SessionFeature  `xml:"urn:ietf:params:xml:ns:xmpp-session session,omitempty"`
	IQSession  *SessionLegacy   `xml:"jabber:iq:session session,omitempty"`
	Register   *RegisterFeature `xml:"http://jabber.org/features/iq-register register,omitempty"`
}

func (*StreamFeatures) fragment() {}

func (f *StreamFeatures) SecureConnectionOffered() bool {
	return f.StartTLS != nil
}

func (f *StreamFeatures) SecureConnectionRequired() bool {
	return f.StartTLS != nil && f.StartTLS.Required != nil
}

func (f *StreamFeatures) HasAuthMechanisms() bool {
	return f.Mechanisms != nil && len(f.Mechanisms.Mechanism) > 0
}

func (f *StreamFeatures) SupportsResourceBinding() bool {
	return f.Bind != nil
}

// SupportsSessions reports whether the server asks for the RFC 3921 session
// establishment. Servers marking the session as optional are skipped.
func (f *StreamFeatures) SupportsSessions() bool {
	if f.Session != nil {
		return f.Session.Optional == nil
	}
	return f.IQSession != nil
}

// SessionNamespace returns the namespace the server used to announce the
// session feature.
func (f *StreamFeatures) SessionNamespace() string {
	if f.IQSession != nil && f.Session == nil {
		return SessionLegacyNS
	}
	return SessionNS
}

func (f *StreamFeatures) SupportsInBandRegistration() bool {
	return f.Register != nil
}

// XEP-0077  In-Band Registration stream feature
type RegisterFeature struct {
	XMLName xml.Name `xml:"http://jabber.org/features/iq-register register"`
}

// RFC 6120  4.9  Stream Errors

// RFC 6120  4.9.2
type StreamError struct {
	XMLName   xml.Name             `xml:"http://etherx.jabber.org/streams error"`
	Condition StreamErrorCondition `xml:",any"`
	Text      string               `xml:"text,omitempty"`
}

func (*StreamError) fragment() {}

func (e *StreamError) Error() string {
	if e.Text != "" {
		return "stream error: " + e.Condition.XMLName.Local + ": " + e.Text
	}
	return "stream error: " + e.Condition.XMLName.Local
}

// RFC 6120  4.9.3  Defined Stream Error Conditions

// Per latest revision of RFC 6120, stream error conditions are empty elements.
type StreamErrorCondition struct {
	XMLName xml.Name
}

// UnmarshalXML keeps the first defined condition; application-specific
// conditions and any later children are skipped.
func (c *StreamErrorCondition) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if c.XMLName.Local == "" && start.Name.Space == StreamsNS {
		c.XMLName = start.Name
	}
	return d.Skip()
}

var (
	StreamErrorConditionBadFormat           = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "bad-format"}}
	StreamErrorConditionConflict            = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "conflict"}}
	StreamErrorConditionHostUnknown         = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "host-unknown"}}
	StreamErrorConditionInternalServerError = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "internal-server-error"}}
	StreamErrorConditionInvalidFrom         = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "invalid-from"}}
	StreamErrorConditionNotAuthorized       = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "not-authorized"}}
	StreamErrorConditionPolicyViolation     = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "policy-violation"}}
	StreamErrorConditionSystemShutdown      = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "system-shutdown"}}
)
