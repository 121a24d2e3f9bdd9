// Package xmppsasl contains the client side of the SASL mechanisms used
// to authenticate an XMPP stream (RFC 6120  6).
package xmppsasl

import (
	"context"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Mechanism names as advertised in <mechanisms/>
const (
	MechanismXOAuth2   = "X-OAUTH2"
	MechanismScramSHA1 = "SCRAM-SHA-1"
	MechanismDigestMD5 = "DIGEST-MD5"
	MechanismPlain     = "PLAIN"
)

// Preference is the fixed selection order. X-OAUTH2 is only chosen when the
// credentials carry a token source.
var Preference = []string{
	MechanismXOAuth2,
	MechanismScramSHA1,
	MechanismDigestMD5,
	MechanismPlain,
}

var (
	ErrNoMechanism              = errors.New("sasl: no usable mechanism")
	ErrVerificationFailed       = errors.New("sasl: server response cannot be verified")
	ErrUnexpectedServerResponse = errors.New("sasl: unexpected server response")
	ErrUnexpectedChallenge      = errors.New("sasl: unexpected server challenge")
	ErrMalformedChallenge       = errors.New("sasl: malformed challenge")
	ErrNonceMismatch            = errors.New("sasl: server nonce does not extend client nonce")
	ErrServerError              = errors.New("sasl: server reported an error")
	ErrTokenExpired             = errors.New("sasl: access token expired")
)

// Mechanism is one SASL exchange. A value is used for a single
// authentication attempt and discarded afterwards. Data passed in and
// returned is the decoded payload; the caller does the base64 framing.
type Mechanism interface {
	Name() string
	// Start returns the initial response. A nil slice means the mechanism
	// has no initial response; an empty one is sent as "=".
	Start(ctx context.Context) ([]byte, error)
	Challenge(data []byte) ([]byte, error)
	// Response handles a <response/> coming from the server.
	Response(data []byte) ([]byte, error)
	// Success verifies the additional data carried by <success/>.
	Success(data []byte) error

	mechanism()
}

var (
	_ Mechanism = (*Plain)(nil)
	_ Mechanism = (*DigestMD5)(nil)
	_ Mechanism = (*ScramSHA1)(nil)
	_ Mechanism = (*XOAuth2)(nil)
)

type Credentials struct {
	Username    string // localpart of the account
	Domain      string
	Password    string
	TokenSource oauth2.TokenSource
}

// Select picks the most preferred mechanism among the offered names that
// the credentials can satisfy. Names are matched case-sensitively.
func Select(offered []string, creds Credentials) (Mechanism, error) {
	set := make(map[string]bool, len(offered))
	for _, name := range offered {
		set[name] = true
	}
	for _, name := range Preference {
		if !set[name] {
			continue
		}
		switch name {
		case MechanismXOAuth2:
			if creds.TokenSource != nil {
				return NewXOAuth2(creds), nil
			}
		case MechanismScramSHA1:
			if creds.Password != "" {
				return NewScramSHA1(creds), nil
			}
		case MechanismDigestMD5:
			if creds.Password != "" {
				return NewDigestMD5(creds), nil
			}
		case MechanismPlain:
			if creds.Password != "" {
				return NewPlain(creds), nil
			}
		}
	}
	return nil, ErrNoMechanism
}

// Encode frames mechanism data as element character data (RFC 6120  6.4.2).
func Encode(data []byte) string {
	if data == nil {
		return ""
	}
	if len(data) == 0 {
		return "="
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	if s == "" || s == "=" {
		return []byte{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "sasl: incorrect encoding")
	}
	return data, nil
}

func generateNonce() (string, error) {
	nonceRaw, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "unable to generate nonce")
	}
	return base64.RawURLEncoding.EncodeToString(nonceRaw[:]), nil
}
