package xmppsasl

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// X-OAUTH2 as deployed by Google Talk. The initial response mirrors PLAIN
// with the access token in place of the password.
type XOAuth2 struct {
	username    string
	domain      string
	tokenSource oauth2.TokenSource
	now         func() time.Time
}

func NewXOAuth2(creds Credentials) *XOAuth2 {
	return &XOAuth2{
		username:    creds.Username,
		domain:      creds.Domain,
		tokenSource: creds.TokenSource,
		now:         time.Now,
	}
}

func (*XOAuth2) mechanism()   {}
func (*XOAuth2) Name() string { return MechanismXOAuth2 }

func (m *XOAuth2) Start(ctx context.Context) ([]byte, error) {
	if m.tokenSource == nil {
		return nil, errors.New("sasl: no token source")
	}
	tok, err := m.tokenSource.Token()
	if err != nil {
		return nil, errors.Wrap(err, "sasl: unable to obtain access token")
	}
	if !tok.Expiry.IsZero() && !tok.Expiry.After(m.now()) {
		return nil, ErrTokenExpired
	}
	if err := m.checkJWTExpiry(tok.AccessToken); err != nil {
		return nil, err
	}
	authcid := m.username
	if m.domain != "" {
		authcid += "@" + m.domain
	}
	return []byte("\x00" + authcid + "\x00" + tok.AccessToken), nil
}

// checkJWTExpiry looks at the exp claim when the access token is a JWT.
// The signature is not verified; that is up to the server.
func (m *XOAuth2) checkJWTExpiry(accessToken string) error {
	if strings.Count(accessToken, ".") != 2 {
		return nil
	}
	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		// opaque token that happens to contain dots
		return nil
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !exp.After(m.now()) {
		return ErrTokenExpired
	}
	return nil
}

func (*XOAuth2) Challenge([]byte) ([]byte, error) {
	return nil, ErrUnexpectedChallenge
}

func (*XOAuth2) Response([]byte) ([]byte, error) {
	return nil, ErrUnexpectedServerResponse
}

func (*XOAuth2) Success(data []byte) error {
	if len(data) != 0 {
		return ErrVerificationFailed
	}
	return nil
}
