package xmppsasl

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// RFC 5802  Salted Challenge Response Authentication Mechanism

// gs2 header for a client without channel binding support
const scramGS2Header = "n,,"

// The salted password is computed on the connection's processing
// goroutine, so the server-chosen cost is bounded.
const (
	scramMinIterations = 1
	scramMaxIterations = 1 << 20
)

type scramStep int

const (
	scramStepInitial scramStep = iota
	scramStepClientFirstSent
	scramStepClientFinalSent
	scramStepVerified
)

type ScramSHA1 struct {
	username string
	password string
	newNonce func() (string, error)

	step            scramStep
	clientNonce     string
	clientFirstBare string
	serverSignature []byte
	serverFinal     string
}

func NewScramSHA1(creds Credentials) *ScramSHA1 {
	return &ScramSHA1{
		username: creds.Username,
		password: creds.Password,
		newNonce: generateNonce,
	}
}

func (*ScramSHA1) mechanism()   {}
func (*ScramSHA1) Name() string { return MechanismScramSHA1 }

func (m *ScramSHA1) Start(context.Context) ([]byte, error) {
	nonce, err := m.newNonce()
	if err != nil {
		return nil, err
	}
	m.clientNonce = nonce
	m.clientFirstBare = "n=" + scramEscape(m.username) + ",r=" + nonce
	m.step = scramStepClientFirstSent
	return []byte(scramGS2Header + m.clientFirstBare), nil
}

func (m *ScramSHA1) Challenge(data []byte) ([]byte, error) {
	switch m.step {
	case scramStepClientFirstSent:
		return m.clientFinal(string(data))
	case scramStepClientFinalSent:
		// Some servers deliver server-final-message as a challenge and
		// expect an empty response before <success/>.
		if err := m.verifyServerFinal(string(data)); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}
	return nil, ErrUnexpectedChallenge
}

func (*ScramSHA1) Response([]byte) ([]byte, error) {
	return nil, ErrUnexpectedServerResponse
}

func (m *ScramSHA1) Success(data []byte) error {
	if len(data) > 0 {
		switch m.step {
		case scramStepClientFinalSent:
			return m.verifyServerFinal(string(data))
		case scramStepVerified:
			// server-final-message repeated after the final challenge
			if string(data) != m.serverFinal {
				return ErrVerificationFailed
			}
			return nil
		}
		return ErrVerificationFailed
	}
	if m.step != scramStepVerified {
		return ErrVerificationFailed
	}
	return nil
}

func (m *ScramSHA1) clientFinal(serverFirst string) ([]byte, error) {
	attrs, err := scramParse(serverFirst)
	if err != nil {
		return nil, err
	}
	if msg, ok := attrs['e']; ok {
		return nil, errors.Wrap(ErrServerError, msg)
	}
	if _, ok := attrs['m']; ok {
		return nil, errors.Wrap(ErrMalformedChallenge, "unsupported mandatory extension")
	}
	nonce := attrs['r']
	if len(nonce) <= len(m.clientNonce) || !strings.HasPrefix(nonce, m.clientNonce) {
		return nil, ErrNonceMismatch
	}
	salt, err := base64.StdEncoding.DecodeString(attrs['s'])
	if err != nil || len(salt) == 0 {
		return nil, errors.Wrap(ErrMalformedChallenge, "invalid salt")
	}
	iterations, err := strconv.Atoi(attrs['i'])
	if err != nil || iterations < scramMinIterations {
		return nil, errors.Wrap(ErrMalformedChallenge, "invalid iteration count")
	}
	if iterations > scramMaxIterations {
		return nil, errors.Wrapf(ErrMalformedChallenge, "iteration count %d too large", iterations)
	}

	saltedPassword := pbkdf2.Key([]byte(m.password), salt, iterations, sha1.Size, sha1.New)
	clientKey := scramHMAC(saltedPassword, "Client Key")
	storedKey := sha1.Sum(clientKey)

	clientFinalWithoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte(scramGS2Header)) +
		",r=" + nonce
	authMessage := m.clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := scramHMAC(storedKey[:], authMessage)
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}
	serverKey := scramHMAC(saltedPassword, "Server Key")
	m.serverSignature = scramHMAC(serverKey, authMessage)
	m.step = scramStepClientFinalSent

	return []byte(clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)), nil
}

func (m *ScramSHA1) verifyServerFinal(serverFinal string) error {
	if m.step == scramStepVerified {
		return nil
	}
	if m.step != scramStepClientFinalSent {
		return ErrUnexpectedChallenge
	}
	attrs, err := scramParse(serverFinal)
	if err != nil {
		return err
	}
	if msg, ok := attrs['e']; ok {
		return errors.Wrap(ErrServerError, msg)
	}
	signature, err := base64.StdEncoding.DecodeString(attrs['v'])
	if err != nil || !hmac.Equal(signature, m.serverSignature) {
		return ErrVerificationFailed
	}
	m.step = scramStepVerified
	m.serverFinal = serverFinal
	return nil
}

func scramHMAC(key []byte, message string) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// RFC 5802  5.1: ',' and '=' in saslname are escaped
func scramEscape(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	return strings.ReplaceAll(s, ",", "=2C")
}

func scramParse(message string) (map[byte]string, error) {
	attrs := make(map[byte]string)
	for _, part := range strings.Split(message, ",") {
		if len(part) < 2 || part[1] != '=' {
			return nil, errors.Wrapf(ErrMalformedChallenge, "bad attribute %q", part)
		}
		attrs[part[0]] = part[2:]
	}
	return attrs, nil
}
