package xmppim

import (
	"encoding/xml"

	"github.com/pkg/errors"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

var (
	ErrRosterItemNoJID     = errors.New("xmppim: roster item has no jid")
	ErrRosterPushMalformed = errors.New("xmppim: roster push must carry exactly one item")
)

const (
	RosterNS = "jabber:iq:roster"
)

const (
	RosterQueryElementName = RosterNS + " query"
)

type RosterIQGet struct {
	XMLName xml.Name `xml:"jabber:iq:roster query"`
	Ver     string   `xml:"ver,attr,omitempty"`
}

// NewRosterRequest builds the roster get sent after the session is
// established (RFC 6121  2.1.3). ver is the last roster version seen,
// empty when the server does not advertise versioning.
func NewRosterRequest(ver string) (*xmppcore.ClientIQ, error) {
	return xmppcore.NewIQ(xmppcore.IQTypeGet, &RosterIQGet{Ver: ver})
}

type RosterIQResult struct {
	XMLName xml.Name     `xml:"jabber:iq:roster query"`
	Ver     string       `xml:"ver,attr,omitempty"`
	Item    []RosterItem `xml:"item,omitempty"`
}

// RosterIQSet is the payload of a roster set, both the ones the client
// sends and the pushes from the server. It carries a single item.
type RosterIQSet struct {
	XMLName xml.Name     `xml:"jabber:iq:roster query"`
	Ver     string       `xml:"ver,attr,omitempty"`
	Item    []RosterItem `xml:"item"`
}

// NewRosterSet adds the contact to the roster or updates it
// (RFC 6121  2.3, 2.4). The item's name and groups replace the stored
// ones; subscription state is the server's to manage and is not sent.
func NewRosterSet(item RosterItem) (*xmppcore.ClientIQ, error) {
	if item.JID.IsEmpty() {
		return nil, ErrRosterItemNoJID
	}
	return xmppcore.NewIQ(xmppcore.IQTypeSet, &RosterIQSet{
		Item: []RosterItem{{JID: item.JID, Name: item.Name, Group: item.Group}},
	})
}

// NewRosterRemove deletes the contact from the roster (RFC 6121  2.5).
func NewRosterRemove(jid xmppcore.JID) (*xmppcore.ClientIQ, error) {
	if jid.IsEmpty() {
		return nil, ErrRosterItemNoJID
	}
	return xmppcore.NewIQ(xmppcore.IQTypeSet, &RosterIQSet{
		Item: []RosterItem{{JID: jid, Subscription: RosterItemSubscriptionRemove}},
	})
}

// RosterPush is a roster change announced by the server (RFC 6121  2.1.6).
type RosterPush struct {
	Ver  string
	Item RosterItem
}

// IsRosterPush reports whether iq is a roster set the client has to
// accept. Pushes from anyone but the account itself are not.
func IsRosterPush(iq *xmppcore.ClientIQ, account xmppcore.JID) bool {
	if iq.Type != xmppcore.IQTypeSet || iq.PayloadElementName() != RosterQueryElementName {
		return false
	}
	return iq.From == nil || iq.From.IsEmpty() || iq.From.Bare() == account.Bare()
}

func ParseRosterPush(iq *xmppcore.ClientIQ) (*RosterPush, error) {
	var query RosterIQSet
	if err := iq.DecodePayload(&query); err != nil {
		return nil, errors.Wrap(err, "unable to decode roster push")
	}
	if len(query.Item) != 1 {
		return nil, ErrRosterPushMalformed
	}
	return &RosterPush{Ver: query.Ver, Item: query.Item[0]}, nil
}

const (
	RosterItemAskSubscribe = "subscribe"
)

const (
	RosterItemSubscriptionBoth   = "both"
	RosterItemSubscriptionFrom   = "from"
	RosterItemSubscriptionNone   = "none"
	RosterItemSubscriptionRemove = "remove"
	RosterItemSubscriptionTo     = "to"
)

type RosterItem struct {
	XMLName      xml.Name     `xml:"jabber:iq:roster item"`
	Approved     *bool        `xml:"approved,attr,omitempty"`
	Ask          string       `xml:"ask,attr,omitempty"`
	JID          xmppcore.JID `xml:"jid,attr"`
	Name         string       `xml:"name,attr,omitempty"`
	Subscription string       `xml:"subscription,attr,omitempty"`
	Group        []string     `xml:"group,omitempty"`
}

// PendingOut reports whether a subscription request to the contact awaits
// approval (RFC 6121  2.1.2.2).
func (item *RosterItem) PendingOut() bool {
	return item.Ask == RosterItemAskSubscribe
}

// Removed reports whether a pushed item announces the contact's removal.
func (item *RosterItem) Removed() bool {
	return item.Subscription == RosterItemSubscriptionRemove
}

func (item *RosterItem) InGroup(group string) bool {
	for _, g := range item.Group {
		if g == group {
			return true
		}
	}
	return false
}

// WithGroup returns a copy of the item that also belongs to group. Send it
// with NewRosterSet to file the contact under the group.
func (item *RosterItem) WithGroup(group string) RosterItem {
	out := *item
	if item.InGroup(group) {
		return out
	}
	groups := make([]string, 0, len(item.Group)+1)
	groups = append(groups, item.Group...)
	out.Group = append(groups, group)
	return out
}
