package xmppcore

import (
	"encoding/xml"
)

// RFC 6120  6  SASL Negotiation

const SASLNS = "urn:ietf:params:xml:ns:xmpp-sasl"

const (
	SASLAuthElementName      = SASLNS + " auth"
	SASLChallengeElementName = SASLNS + " challenge"
	SASLResponseElementName  = SASLNS + " response"
	SASLSuccessElementName   = SASLNS + " success"
	SASLFailureElementName   = SASLNS + " failure"
)

// Google's X-OAUTH2 extension attributes on <auth/>
const GoogleAuthNS = "http://www.google.com/talk/protocol/auth"

// RFC 6120  6.4.1
type SASLMechanisms struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms"`
	Mechanism []string `xml:"mechanism"`
}

// RFC 6120  6.4.2
type SASLAuth struct {
	XMLName     xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl auth"`
	Mechanism   string   `xml:"mechanism,attr"`
	AuthService string   `xml:"http://www.google.com/talk/protocol/auth service,attr,omitempty"`
	CharData    string   `xml:",chardata"`
}

// RFC 6120  6.4.3
type SASLChallenge struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl challenge"`
	CharData string   `xml:",chardata"`
}

func (*SASLChallenge) fragment() {}

// SASLResponse is sent by the client in reply to a challenge. A server
// never sends one in a well-formed exchange.
type SASLResponse struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl response"`
	CharData string   `xml:",chardata"`
}

func (*SASLResponse) fragment() {}

// RFC 6120  6.4.5
type SASLAbort struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl abort"`
}

// RFC 6120  6.4.6
type SASLSuccess struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl success"`
	CharData string   `xml:",chardata"`
}

func (*SASLSuccess) fragment() {}

type SASLFailure struct {
	XMLName   xml.Name             `xml:"urn:ietf:params:xml:ns:xmpp-sasl failure"`
	Condition SASLFailureCondition `xml:",any"`
	Text      string               `xml:"text,omitempty"`
}

func (*SASLFailure) fragment() {}

// Reason renders the failure in a human-readable form.
func (f *SASLFailure) Reason() string {
	condition := f.Condition.XMLName.Local
	if condition == "" {
		condition = "unknown-condition"
	}
	if f.Text != "" {
		return condition + ": " + f.Text
	}
	return condition
}

func (f *SASLFailure) Error() string {
	return "sasl failure: " + f.Reason()
}

type SASLFailureCondition struct {
	XMLName xml.Name // Deliberately un-tagged
}

// UnmarshalXML keeps the first condition in the SASL namespace.
func (c *SASLFailureCondition) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if c.XMLName.Local == "" && start.Name.Space == SASLNS {
		c.XMLName = start.Name
	}
	return d.Skip()
}

// RFC 6120 section 6.5
var (
	SASLFailureConditionAborted              = saslFailureCondition("aborted")
	SASLFailureConditionAccountDisabled      = saslFailureCondition("account-disabled")
	SASLFailureConditionCredentialsExpired   = saslFailureCondition("credentials-expired")
	SASLFailureConditionEncryptionRequired   = saslFailureCondition("encryption-required")
	SASLFailureConditionIncorrectEncoding    = saslFailureCondition("incorrect-encoding")
	SASLFailureConditionInvalidAuthzid       = saslFailureCondition("invalid-authzid")
	SASLFailureConditionInvalidMechanism     = saslFailureCondition("invalid-mechanism")
	SASLFailureConditionMalformedRequest     = saslFailureCondition("malformed-request")
	SASLFailureConditionMechanismTooWeak     = saslFailureCondition("mechanism-too-weak")
	SASLFailureConditionNotAuthorized        = saslFailureCondition("not-authorized")
	SASLFailureConditionTemporaryAuthFailure = saslFailureCondition("temporary-auth-failure")
)

func saslFailureCondition(local string) SASLFailureCondition {
	return SASLFailureCondition{XMLName: xml.Name{Space: SASLNS, Local: local}}
}
