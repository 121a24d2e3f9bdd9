package xmppcore

import (
	"strings"

	"github.com/pkg/errors"
)

// RFC 7622  3.  Addresses

var (
	ErrJIDEmptyDomain   = errors.New("jid: empty domainpart")
	ErrJIDEmptyLocal    = errors.New("jid: empty localpart")
	ErrJIDEmptyResource = errors.New("jid: empty resourcepart")
	ErrJIDTooLong       = errors.New("jid: part exceeds 1023 octets")
)

const jidPartMaxLen = 1023

//TODO: stringprep / PRECIS normalization of the local and resource parts
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// ParseJID parses an address of the form [localpart@]domainpart[/resourcepart].
// An empty string yields an empty JID.
func ParseJID(s string) (JID, error) {
	if s == "" {
		return JID{}, nil
	}
	var jid JID
	rest := s
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		jid.Resource = rest[i+1:]
		rest = rest[:i]
		if jid.Resource == "" {
			return JID{}, ErrJIDEmptyResource
		}
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		jid.Local = rest[:i]
		rest = rest[i+1:]
		if jid.Local == "" {
			return JID{}, ErrJIDEmptyLocal
		}
	}
	// RFC 7622  3.2: a trailing dot in the domainpart is stripped
	jid.Domain = strings.ToLower(strings.TrimSuffix(rest, "."))
	if jid.Domain == "" {
		return JID{}, ErrJIDEmptyDomain
	}
	if len(jid.Local) > jidPartMaxLen || len(jid.Domain) > jidPartMaxLen ||
		len(jid.Resource) > jidPartMaxLen {
		return JID{}, ErrJIDTooLong
	}
	return jid, nil
}

// Bare returns the "bare JID" string.
//
// RFC 6120  1.4:
// The term "bare JID" refers to an XMPP address of the form
// <localpart@domainpart> (for an account at a server) or of the form
// <domainpart> (for a server).
func (jid JID) Bare() string {
	if jid.Local != "" {
		return jid.Local + "@" + jid.Domain
	}
	return jid.Domain
}

// String returns the full JID when a resource is present, the bare JID
// otherwise.
//
// RFC 6120  1.4
// The term "full JID" refers to an XMPP address of the form
// <localpart@domainpart/resourcepart> (for a particular authorized client
// or device associated with an account) or of the form
// <domainpart/resourcepart> (for a particular resource or script associated
// with a server).
func (jid JID) String() string {
	if jid.Resource == "" {
		return jid.Bare()
	}
	return jid.Bare() + "/" + jid.Resource
}

func (jid JID) BareJID() JID {
	return JID{Local: jid.Local, Domain: jid.Domain}
}

func (jid JID) Equals(other JID) bool {
	return jid == other
}

func (jid JID) IsEmpty() bool {
	return jid.Local == "" && jid.Domain == "" && jid.Resource == ""
}

func (jid JID) IsBare() bool {
	return jid.Domain != "" && jid.Resource == ""
}

func (jid JID) IsFull() bool {
	return jid.Domain != "" && jid.Resource != ""
}

// MarshalText allows a JID to be used directly as an XML attribute or
// character data.
func (jid JID) MarshalText() ([]byte, error) {
	return []byte(jid.String()), nil
}

func (jid *JID) UnmarshalText(text []byte) error {
	parsed, err := ParseJID(string(text))
	if err != nil {
		return err
	}
	*jid = parsed
	return nil
}
