package xmppcore

import (
	"encoding/xml"
)

const StanzasNS = "urn:ietf:params:xml:ns:xmpp-stanzas"

// Stanza is implemented by the addressed top-level elements: iq, message
// and presence.
type Stanza interface {
	StanzaAttributes() *StanzaCommonAttributes
}

// RFC 6120  8.1
type StanzaCommonAttributes struct {
	ID   string `xml:"id,attr,omitempty"`
	From *JID   `xml:"from,attr,omitempty"`
	To   *JID   `xml:"to,attr,omitempty"`
	Lang string `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
}

func (attrs *StanzaCommonAttributes) StanzaAttributes() *StanzaCommonAttributes {
	return attrs
}

// RFC 6120  8.3.2
const (
	StanzaErrorTypeAuth     = "auth"
	StanzaErrorTypeCancel   = "cancel"
	StanzaErrorTypeContinue = "continue"
	StanzaErrorTypeModify   = "modify"
	StanzaErrorTypeWait     = "wait"
)

// RFC 6120  8.3.2
type StanzaError struct {
	XMLName   xml.Name             `xml:"jabber:client error"`
	By        string               `xml:"by,attr,omitempty"`
	Type      string               `xml:"type,attr"`
	Condition StanzaErrorCondition `xml:",any"`
	Text      string               `xml:"text,omitempty"`
}

func (e *StanzaError) Error() string {
	if e.Text != "" {
		return "stanza error: " + e.Condition.XMLName.Local + ": " + e.Text
	}
	return "stanza error: " + e.Condition.XMLName.Local
}

type StanzaErrorCondition struct {
	XMLName xml.Name
}

var (
	StanzaErrorConditionBadRequest            = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "bad-request"}}
	StanzaErrorConditionConflict              = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "conflict"}}
	StanzaErrorConditionFeatureNotImplemented = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "feature-not-implemented"}}
	StanzaErrorConditionItemNotFound          = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "item-not-found"}}
	StanzaErrorConditionNotAllowed            = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "not-allowed"}}
	StanzaErrorConditionServiceUnavailable    = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "service-unavailable"}}
)
