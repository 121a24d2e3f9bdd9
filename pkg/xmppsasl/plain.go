package xmppsasl

import (
	"context"
)

// RFC 4616
type Plain struct {
	username string
	password string
}

func NewPlain(creds Credentials) *Plain {
	return &Plain{username: creds.Username, password: creds.Password}
}

func (*Plain) mechanism()   {}
func (*Plain) Name() string { return MechanismPlain }

// Start sends the message with an empty authzid.
func (m *Plain) Start(context.Context) ([]byte, error) {
	return []byte("\x00" + m.username + "\x00" + m.password), nil
}

func (*Plain) Challenge([]byte) ([]byte, error) {
	return nil, ErrUnexpectedChallenge
}

func (*Plain) Response([]byte) ([]byte, error) {
	return nil, ErrUnexpectedServerResponse
}

// Success accepts only an empty outcome; PLAIN has nothing the server could
// prove.
func (*Plain) Success(data []byte) error {
	if len(data) != 0 {
		return ErrVerificationFailed
	}
	return nil
}
