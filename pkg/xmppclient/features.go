package xmppclient

import (
	"strings"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppsasl"
)

// ServerFeatures is the set of negotiable features announced in the last
// stream-features element. Bits are cleared as they are satisfied.
type ServerFeatures uint16

const (
	FeatureSecureConnection ServerFeatures = 1 << iota
	FeatureSaslScramSha1
	FeatureSaslDigestMD5
	FeatureSaslPlain
	FeatureSaslXOAuth2
	FeatureResourceBinding
	FeatureSessions
	FeatureInBandRegistration
)

const featureSaslAny = FeatureSaslScramSha1 | FeatureSaslDigestMD5 |
	FeatureSaslPlain | FeatureSaslXOAuth2

var saslFeatures = []struct {
	feature ServerFeatures
	name    string
}{
	{FeatureSaslXOAuth2, xmppsasl.MechanismXOAuth2},
	{FeatureSaslScramSha1, xmppsasl.MechanismScramSHA1},
	{FeatureSaslDigestMD5, xmppsasl.MechanismDigestMD5},
	{FeatureSaslPlain, xmppsasl.MechanismPlain},
}

var featureNames = []struct {
	feature ServerFeatures
	name    string
}{
	{FeatureSecureConnection, "starttls"},
	{FeatureSaslScramSha1, "scram-sha-1"},
	{FeatureSaslDigestMD5, "digest-md5"},
	{FeatureSaslPlain, "plain"},
	{FeatureSaslXOAuth2, "x-oauth2"},
	{FeatureResourceBinding, "bind"},
	{FeatureSessions, "session"},
	{FeatureInBandRegistration, "register"},
}

func (f ServerFeatures) Has(feature ServerFeatures) bool {
	return f&feature != 0
}

func (f ServerFeatures) HasSASL() bool {
	return f&featureSaslAny != 0
}

func (f ServerFeatures) String() string {
	var names []string
	for _, fn := range featureNames {
		if f.Has(fn.feature) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}

// mechanismNames lists the offered mechanisms that this client knows.
func (f ServerFeatures) mechanismNames() []string {
	var names []string
	for _, sf := range saslFeatures {
		if f.Has(sf.feature) {
			names = append(names, sf.name)
		}
	}
	return names
}

// serverFeaturesFrom maps an announcement to the feature set. Mechanism
// names are case-sensitive; unknown ones are ignored.
func serverFeaturesFrom(features *xmppcore.StreamFeatures, requireTLS bool) ServerFeatures {
	var f ServerFeatures
	if features.SecureConnectionRequired() ||
		(features.SecureConnectionOffered() && requireTLS) {
		f |= FeatureSecureConnection
	}
	if features.HasAuthMechanisms() {
		for _, name := range features.Mechanisms.Mechanism {
			for _, sf := range saslFeatures {
				if strings.TrimSpace(name) == sf.name {
					f |= sf.feature
				}
			}
		}
	}
	if features.SupportsResourceBinding() {
		f |= FeatureResourceBinding
	}
	if features.SupportsSessions() {
		f |= FeatureSessions
	}
	if features.SupportsInBandRegistration() {
		f |= FeatureInBandRegistration
	}
	return f
}
