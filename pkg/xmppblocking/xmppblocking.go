// Package xmppblocking implements XEP-0191 Blocking Command.
//
// The server pushes block and unblock sets to every resource when the
// list changes. Those arrive on the client's info-query topic and are
// acknowledged by the application; see IsPush and ParsePush.
package xmppblocking

import (
	"encoding/xml"

	"github.com/pkg/errors"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

const NS = "urn:xmpp:blocking"

const (
	BlocklistElementName = NS + " blocklist"
	BlockElementName     = NS + " block"
	UnblockElementName   = NS + " unblock"
)

var ErrNoJIDs = errors.New("xmppblocking: block requires at least one jid")

type Item struct {
	XMLName xml.Name     `xml:"urn:xmpp:blocking item"`
	JID     xmppcore.JID `xml:"jid,attr"`
}

type Blocklist struct {
	XMLName xml.Name `xml:"urn:xmpp:blocking blocklist"`
	Item    []Item   `xml:"item,omitempty"`
}

// JIDs lists the blocked addresses.
func (l *Blocklist) JIDs() []xmppcore.JID {
	return itemJIDs(l.Item)
}

type Block struct {
	XMLName xml.Name `xml:"urn:xmpp:blocking block"`
	Item    []Item   `xml:"item"`
}

type Unblock struct {
	XMLName xml.Name `xml:"urn:xmpp:blocking unblock"`
	Item    []Item   `xml:"item,omitempty"`
}

// NewBlocklistRequest retrieves the block list (XEP-0191  3.2).
func NewBlocklistRequest() (*xmppcore.ClientIQ, error) {
	return xmppcore.NewIQ(xmppcore.IQTypeGet, &Blocklist{})
}

// NewBlockRequest blocks communication with the jids (XEP-0191  3.3).
func NewBlockRequest(jids ...xmppcore.JID) (*xmppcore.ClientIQ, error) {
	if len(jids) == 0 {
		return nil, ErrNoJIDs
	}
	return xmppcore.NewIQ(xmppcore.IQTypeSet, &Block{Item: items(jids)})
}

// NewUnblockRequest unblocks the jids, or every blocked entity when none
// are given (XEP-0191  3.4, 3.5).
func NewUnblockRequest(jids ...xmppcore.JID) (*xmppcore.ClientIQ, error) {
	return xmppcore.NewIQ(xmppcore.IQTypeSet, &Unblock{Item: items(jids)})
}

// IsPush reports whether iq is a block list change pushed by the
// account's server.
func IsPush(iq *xmppcore.ClientIQ, account xmppcore.JID) bool {
	if iq.Type != xmppcore.IQTypeSet {
		return false
	}
	switch iq.PayloadElementName() {
	case BlockElementName, UnblockElementName:
	default:
		return false
	}
	return iq.From == nil || iq.From.IsEmpty() || iq.From.Bare() == account.Bare()
}

// Push is a block list change. An unblock push without JIDs means the
// whole list was cleared.
type Push struct {
	Blocked bool
	JIDs    []xmppcore.JID
}

func ParsePush(iq *xmppcore.ClientIQ) (*Push, error) {
	switch iq.PayloadElementName() {
	case BlockElementName:
		var block Block
		if err := iq.DecodePayload(&block); err != nil {
			return nil, errors.Wrap(err, "unable to decode block push")
		}
		return &Push{Blocked: true, JIDs: itemJIDs(block.Item)}, nil
	case UnblockElementName:
		var unblock Unblock
		if err := iq.DecodePayload(&unblock); err != nil {
			return nil, errors.Wrap(err, "unable to decode unblock push")
		}
		return &Push{JIDs: itemJIDs(unblock.Item)}, nil
	}
	return nil, errors.Errorf("xmppblocking: unexpected payload %q", iq.PayloadElementName())
}

func items(jids []xmppcore.JID) []Item {
	if len(jids) == 0 {
		return nil
	}
	out := make([]Item, 0, len(jids))
	for _, jid := range jids {
		out = append(out, Item{JID: jid})
	}
	return out
}

func itemJIDs(items []Item) []xmppcore.JID {
	out := make([]xmppcore.JID, 0, len(items))
	for _, item := range items {
		out = append(out, item.JID)
	}
	return out
}
