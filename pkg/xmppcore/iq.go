package xmppcore

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/pkg/errors"
)

const ClientIQElementName = JabberClientNS + " iq"

// Standard IQ types
//
// RFC 6120  8.2.3
const (
	IQTypeGet    = "get"
	IQTypeSet    = "set"
	IQTypeResult = "result"
	IQTypeError  = "error"
)

// ErrIQNoPayload is returned when an IQ carries no child element.
var ErrIQNoPayload = errors.New("iq has no payload")

// ClientIQ is an info-query stanza. A request carries exactly one payload
// child, kept raw so that it can be decoded by its element name.
type ClientIQ struct {
	XMLName xml.Name `xml:"jabber:client iq"`
	StanzaCommonAttributes
	Type    string       `xml:"type,attr"` // Any of IQType*
	Payload []byte       `xml:",innerxml"`
	Error   *StanzaError `xml:",omitempty"`
}

// NewIQ builds an IQ whose payload is the XML encoding of payload. A nil
// payload yields an empty IQ (e.g. a plain result).
func NewIQ(iqType string, payload interface{}) (*ClientIQ, error) {
	iq := &ClientIQ{Type: iqType}
	if payload == nil {
		return iq, nil
	}
	payloadXML, err := xml.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal iq payload")
	}
	iq.Payload = payloadXML
	return iq, nil
}

func (iq *ClientIQ) IsRequest() bool {
	return iq.Type == IQTypeGet || iq.Type == IQTypeSet
}

// PayloadName returns the qualified name of the first child element.
func (iq *ClientIQ) PayloadName() (xml.Name, error) {
	decoder := xml.NewDecoder(bytes.NewReader(iq.Payload))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return xml.Name{}, ErrIQNoPayload
		}
		if err != nil {
			return xml.Name{}, errors.Wrap(err, "unable to read iq payload")
		}
		if startElem, ok := token.(xml.StartElement); ok {
			return startElem.Name, nil
		}
	}
}

// PayloadElementName returns the payload name in the form used by the
// *ElementName constants, or an empty string.
func (iq *ClientIQ) PayloadElementName() string {
	name, err := iq.PayloadName()
	if err != nil {
		return ""
	}
	return name.Space + " " + name.Local
}

// DecodePayload decodes the first child element into v.
func (iq *ClientIQ) DecodePayload(v interface{}) error {
	if len(bytes.TrimSpace(iq.Payload)) == 0 {
		return ErrIQNoPayload
	}
	return xml.Unmarshal(iq.Payload, v)
}

// AsResponse returns an empty result addressed back to the sender of iq.
func (iq *ClientIQ) AsResponse() *ClientIQ {
	return &ClientIQ{
		StanzaCommonAttributes: StanzaCommonAttributes{
			ID:   iq.ID,
			From: iq.To,
			To:   iq.From,
		},
		Type: IQTypeResult,
	}
}
