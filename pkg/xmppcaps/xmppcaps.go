// Package xmppcaps implements XEP-0115: Entity Capabilities.
package xmppcaps

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/xml"
	"hash"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/exavolt/xmpp-client/pkg/xmppdisco"
	"github.com/exavolt/xmpp-client/pkg/xmppping"
)

const NS = "http://jabber.org/protocol/caps"

const CElementName = NS + " c"

// Hash function names from the IANA registry, as used in the 'hash'
// attribute.
const (
	HashSHA1   = "sha-1"
	HashSHA256 = "sha-256"
	HashSHA512 = "sha-512"
)

var (
	ErrUnsupportedHash   = errors.New("caps: unsupported hash algorithm")
	ErrDuplicateIdentity = errors.New("caps: duplicate identity")
	ErrDuplicateFeature  = errors.New("caps: duplicate feature")
	ErrNoIdentity        = errors.New("caps: at least one identity is required")
)

type C struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/caps c"`
	Ext     string   `xml:"ext,attr,omitempty"` //DEPRECATED
	Hash    string   `xml:"hash,attr"`
	Node    string   `xml:"node,attr"`
	Ver     string   `xml:"ver,attr"`
}

// Descriptor is an immutable set of identities and features together with
// its verification string.
type Descriptor struct {
	node       string
	hashName   string
	identities []xmppdisco.Identity
	features   []string
	ver        string
}

// New sorts the identities and features and computes the verification
// string once.
func New(node, hashName string, identities []xmppdisco.Identity, features []string) (*Descriptor, error) {
	if len(identities) == 0 {
		return nil, ErrNoIdentity
	}
	sortedIdentities := append([]xmppdisco.Identity(nil), identities...)
	sortIdentities(sortedIdentities)
	for i := 1; i < len(sortedIdentities); i++ {
		if sortedIdentities[i] == sortedIdentities[i-1] {
			return nil, errors.Wrap(ErrDuplicateIdentity, identityString(sortedIdentities[i]))
		}
	}
	sortedFeatures := append([]string(nil), features...)
	sort.Strings(sortedFeatures)
	for i := 1; i < len(sortedFeatures); i++ {
		if sortedFeatures[i] == sortedFeatures[i-1] {
			return nil, errors.Wrap(ErrDuplicateFeature, sortedFeatures[i])
		}
	}
	ver, err := verificationString(hashName, sortedIdentities, sortedFeatures)
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		node:       node,
		hashName:   hashName,
		identities: sortedIdentities,
		features:   sortedFeatures,
		ver:        ver,
	}, nil
}

// VerificationString computes the XEP-0115 verification string of the given
// identities and features. The inputs are not modified.
func VerificationString(hashName string, identities []xmppdisco.Identity, features []string) (string, error) {
	sortedIdentities := append([]xmppdisco.Identity(nil), identities...)
	sortIdentities(sortedIdentities)
	sortedFeatures := append([]string(nil), features...)
	sort.Strings(sortedFeatures)
	return verificationString(hashName, sortedIdentities, sortedFeatures)
}

// XEP-0115  5.1  Verification String
//
//TODO: XEP-0128 extended information forms (steps 6 and 7)
func verificationString(hashName string, identities []xmppdisco.Identity, features []string) (string, error) {
	h, err := newHash(hashName)
	if err != nil {
		return "", err
	}
	var s strings.Builder
	for _, identity := range identities {
		s.WriteString(identityString(identity))
		s.WriteByte('<')
	}
	for _, feature := range features {
		s.WriteString(feature)
		s.WriteByte('<')
	}
	// Go strings are UTF-8 already.
	h.Write([]byte(s.String()))
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

func identityString(identity xmppdisco.Identity) string {
	return identity.Category + "/" + identity.Type + "/" + identity.Lang + "/" + identity.Name
}

// Identities are ordered by category, type and xml:lang; the name breaks
// the remaining ties so that the order is total.
func sortIdentities(identities []xmppdisco.Identity) {
	sort.Slice(identities, func(i, j int) bool {
		a, b := identities[i], identities[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Lang != b.Lang {
			return a.Lang < b.Lang
		}
		return a.Name < b.Name
	})
}

func newHash(hashName string) (hash.Hash, error) {
	switch hashName {
	case HashSHA1:
		return sha1.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	}
	return nil, errors.Wrap(ErrUnsupportedHash, hashName)
}

func (d *Descriptor) Node() string     { return d.node }
func (d *Descriptor) HashName() string { return d.hashName }

// VerificationString returns the cached verification string.
func (d *Descriptor) VerificationString() string { return d.ver }

// NodeVer is the 'node#ver' value queried by peers through disco#info.
func (d *Descriptor) NodeVer() string { return d.node + "#" + d.ver }

func (d *Descriptor) Identities() []xmppdisco.Identity {
	return append([]xmppdisco.Identity(nil), d.identities...)
}

func (d *Descriptor) Features() []string {
	return append([]string(nil), d.features...)
}

// Caps returns the <c/> element advertised in presence.
func (d *Descriptor) Caps() *C {
	return &C{Hash: d.hashName, Node: d.node, Ver: d.ver}
}

// InfoResult returns the disco#info answer for the given queried node.
func (d *Descriptor) InfoResult(node string) *xmppdisco.InfoIQResult {
	result := &xmppdisco.InfoIQResult{
		Node:     node,
		Identity: d.Identities(),
	}
	for _, feature := range d.features {
		result.Feature = append(result.Feature, xmppdisco.Feature{Var: feature})
	}
	return result
}

const (
	DefaultNode = "https://github.com/exavolt/xmpp-client"
	DefaultName = "xmpp-client"
)

// Default returns the descriptor of this client.
func Default() *Descriptor {
	d, err := New(DefaultNode, HashSHA1,
		[]xmppdisco.Identity{{
			Category: xmppdisco.IdentityCategoryClient,
			Type:     xmppdisco.IdentityTypePC,
			Name:     DefaultName,
		}},
		[]string{
			NS,
			xmppdisco.InfoNS,
			xmppdisco.ItemsNS,
			xmppping.NS,
		})
	if err != nil {
		panic(err)
	}
	return d
}
