package xmppdisco

import (
	"encoding/xml"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

// XEP-0030: Service Discovery

const (
	InfoNS  = "http://jabber.org/protocol/disco#info"
	ItemsNS = "http://jabber.org/protocol/disco#items"
)

const (
	InfoQueryElementName  = InfoNS + " query"
	ItemsQueryElementName = ItemsNS + " query"
)

type InfoIQGet struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/disco#info query"`
	Node    string   `xml:"node,attr,omitempty"`
}

// NewInfoRequest builds a disco#info query for the entity at to, or the
// account's server when to is nil (XEP-0030  3.1).
func NewInfoRequest(to *xmppcore.JID, node string) (*xmppcore.ClientIQ, error) {
	iq, err := xmppcore.NewIQ(xmppcore.IQTypeGet, &InfoIQGet{Node: node})
	if err != nil {
		return nil, err
	}
	iq.To = to
	return iq, nil
}

type InfoIQResult struct {
	XMLName  xml.Name   `xml:"http://jabber.org/protocol/disco#info query"`
	Node     string     `xml:"node,attr,omitempty"`
	Identity []Identity `xml:"identity,omitempty"`
	Feature  []Feature  `xml:"feature,omitempty"`
}

func (r *InfoIQResult) HasFeature(ns string) bool {
	for _, feature := range r.Feature {
		if feature.Var == ns {
			return true
		}
	}
	return false
}

// Features returns the advertised namespaces in document order.
func (r *InfoIQResult) Features() []string {
	features := make([]string, 0, len(r.Feature))
	for _, feature := range r.Feature {
		features = append(features, feature.Var)
	}
	return features
}

type ItemsIQGet struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/disco#items query"`
	Node    string   `xml:"node,attr,omitempty"`
}

// NewItemsRequest builds a disco#items query (XEP-0030  4.1).
func NewItemsRequest(to *xmppcore.JID, node string) (*xmppcore.ClientIQ, error) {
	iq, err := xmppcore.NewIQ(xmppcore.IQTypeGet, &ItemsIQGet{Node: node})
	if err != nil {
		return nil, err
	}
	iq.To = to
	return iq, nil
}

type ItemsIQResult struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/disco#items query"`
	Node    string   `xml:"node,attr,omitempty"`
	Item    []Item   `xml:"item,omitempty"`
}

// https://xmpp.org/registrar/disco-categories.html
//
// Only the categories a client advertises or looks for on its server.
const (
	IdentityCategoryAccount = "account"
	IdentityCategoryClient  = "client"
	IdentityCategoryServer  = "server"
)

// Types of the client category
const (
	IdentityTypeBot     = "bot"
	IdentityTypeConsole = "console"
	IdentityTypePC      = "pc"
	IdentityTypePhone   = "phone"
	IdentityTypeWeb     = "web"
)

// Identity is ordered and compared by category, type, lang and name when
// computing capabilities (XEP-0115  5.1).
type Identity struct {
	Category string `xml:"category,attr"`
	Type     string `xml:"type,attr"`
	Lang     string `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Name     string `xml:"name,attr,omitempty"`
}

type Feature struct {
	Var string `xml:"var,attr"`
}

type Item struct {
	JID  xmppcore.JID `xml:"jid,attr"`
	Name string       `xml:"name,attr,omitempty"`
	Node string       `xml:"node,attr,omitempty"`
}
