package xmppsasl

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// RFC 2831  Using Digest Authentication as a SASL Mechanism

const digestMD5Service = "xmpp"

type digestStep int

const (
	digestStepInitial digestStep = iota
	digestStepResponseSent
	digestStepVerified
)

type DigestMD5 struct {
	username string
	password string
	service  string
	host     string
	newNonce func() (string, error)

	step         digestStep
	rspauth      string
	verifiedData string
}

func NewDigestMD5(creds Credentials) *DigestMD5 {
	return &DigestMD5{
		username: creds.Username,
		password: creds.Password,
		service:  digestMD5Service,
		host:     creds.Domain,
		newNonce: generateNonce,
	}
}

func (*DigestMD5) mechanism()   {}
func (*DigestMD5) Name() string { return MechanismDigestMD5 }

// Start returns nil; DIGEST-MD5 has no initial response.
func (*DigestMD5) Start(context.Context) ([]byte, error) {
	return nil, nil
}

func (m *DigestMD5) Challenge(data []byte) ([]byte, error) {
	directives, err := parseDigestChallenge(string(data))
	if err != nil {
		return nil, err
	}
	switch m.step {
	case digestStepInitial:
		return m.digestResponse(directives)
	case digestStepResponseSent:
		if err := m.verify(directives); err != nil {
			return nil, err
		}
		m.verifiedData = string(data)
		return []byte{}, nil
	}
	return nil, ErrUnexpectedChallenge
}

func (*DigestMD5) Response([]byte) ([]byte, error) {
	return nil, ErrUnexpectedServerResponse
}

func (m *DigestMD5) Success(data []byte) error {
	if len(data) > 0 {
		if m.step == digestStepVerified {
			// rspauth repeated after the final challenge
			if string(data) != m.verifiedData {
				return ErrVerificationFailed
			}
			return nil
		}
		if m.step != digestStepResponseSent {
			return ErrVerificationFailed
		}
		directives, err := parseDigestChallenge(string(data))
		if err != nil {
			return ErrVerificationFailed
		}
		return m.verify(directives)
	}
	if m.step != digestStepVerified {
		return ErrVerificationFailed
	}
	return nil
}

func (m *DigestMD5) digestResponse(directives map[string][]string) ([]byte, error) {
	nonce := firstDirective(directives, "nonce")
	if nonce == "" {
		return nil, errors.Wrap(ErrMalformedChallenge, "missing nonce")
	}
	if !hasDirectiveToken(directives, "qop", "auth") {
		return nil, errors.Wrap(ErrMalformedChallenge, "qop=auth not offered")
	}
	if alg := firstDirective(directives, "algorithm"); alg != "md5-sess" {
		return nil, errors.Wrapf(ErrMalformedChallenge, "unsupported algorithm %q", alg)
	}
	realm := firstDirective(directives, "realm")
	if realm == "" {
		realm = m.host
	}
	cnonce, err := m.newNonce()
	if err != nil {
		return nil, err
	}

	const nc = "00000001"
	const qop = "auth"
	digestURI := m.service + "/" + m.host

	userHash := md5.Sum([]byte(m.username + ":" + realm + ":" + m.password))
	a1 := string(userHash[:]) + ":" + nonce + ":" + cnonce
	ha1 := md5Hex(a1)
	kdPrefix := ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":"

	response := md5Hex(kdPrefix + md5Hex("AUTHENTICATE:"+digestURI))
	m.rspauth = md5Hex(kdPrefix + md5Hex(":"+digestURI))
	m.step = digestStepResponseSent

	var b strings.Builder
	if firstDirective(directives, "charset") == "utf-8" {
		b.WriteString("charset=utf-8,")
	}
	b.WriteString(`username=` + quoteDigestValue(m.username))
	b.WriteString(`,realm=` + quoteDigestValue(realm))
	b.WriteString(`,nonce=` + quoteDigestValue(nonce))
	b.WriteString(`,nc=` + nc)
	b.WriteString(`,cnonce=` + quoteDigestValue(cnonce))
	b.WriteString(`,digest-uri=` + quoteDigestValue(digestURI))
	b.WriteString(`,response=` + response)
	b.WriteString(`,qop=` + qop)
	return []byte(b.String()), nil
}

func (m *DigestMD5) verify(directives map[string][]string) error {
	if m.step == digestStepVerified {
		return nil
	}
	rspauth := firstDirective(directives, "rspauth")
	if rspauth == "" ||
		subtle.ConstantTimeCompare([]byte(rspauth), []byte(m.rspauth)) != 1 {
		return ErrVerificationFailed
	}
	m.step = digestStepVerified
	return nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func quoteDigestValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func firstDirective(directives map[string][]string, name string) string {
	if values := directives[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// hasDirectiveToken checks a comma separated token list such as
// qop="auth,auth-int".
func hasDirectiveToken(directives map[string][]string, name, token string) bool {
	for _, value := range directives[name] {
		for _, t := range strings.Split(value, ",") {
			if strings.TrimSpace(t) == token {
				return true
			}
		}
	}
	return false
}

// parseDigestChallenge tokenizes a digest-challenge into its directives.
// Directive names are case-insensitive and may repeat (realm).
func parseDigestChallenge(s string) (map[string][]string, error) {
	directives := make(map[string][]string)
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ',' || s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		eq := strings.IndexByte(s[i:], '=')
		if eq <= 0 {
			return nil, errors.Wrap(ErrMalformedChallenge, "directive without value")
		}
		name := strings.ToLower(strings.TrimSpace(s[i : i+eq]))
		i += eq + 1

		var value strings.Builder
		if i < len(s) && s[i] == '"' {
			i++
			closed := false
			for i < len(s) {
				c := s[i]
				i++
				if c == '\\' && i < len(s) {
					value.WriteByte(s[i])
					i++
					continue
				}
				if c == '"' {
					closed = true
					break
				}
				value.WriteByte(c)
			}
			if !closed {
				return nil, errors.Wrap(ErrMalformedChallenge, "unterminated quoted string")
			}
		} else {
			end := strings.IndexByte(s[i:], ',')
			if end < 0 {
				end = len(s) - i
			}
			value.WriteString(strings.TrimSpace(s[i : i+end]))
			i += end
		}
		directives[name] = append(directives[name], value.String())
	}
	return directives, nil
}
