package xmppclient

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// scramServer is the server half of SCRAM-SHA-1 for a single exchange.
type scramServer struct {
	password    string
	salt        []byte
	iterations  int
	serverNonce string

	clientFirstBare string
	serverFirst     string
	nonce           string
}

func newScramServer(password string) *scramServer {
	return &scramServer{
		password:    password,
		salt:        []byte("xmpp-client-test-salt"),
		iterations:  4096,
		serverNonce: "3rfcNHYJY1ZVvWVs7j",
	}
}

func (s *scramServer) first(t *testing.T, clientFirst []byte) []byte {
	t.Helper()
	msg := string(clientFirst)
	require.True(t, strings.HasPrefix(msg, "n,,"), "unexpected gs2 header in %q", msg)
	s.clientFirstBare = strings.TrimPrefix(msg, "n,,")
	attrs := scramAttrs(t, s.clientFirstBare)
	s.nonce = attrs["r"] + s.serverNonce
	s.serverFirst = "r=" + s.nonce +
		",s=" + base64.StdEncoding.EncodeToString(s.salt) +
		",i=4096"
	return []byte(s.serverFirst)
}

// final checks the client proof and returns the server-final-message.
func (s *scramServer) final(t *testing.T, clientFinal []byte) []byte {
	t.Helper()
	msg := string(clientFinal)
	idx := strings.LastIndex(msg, ",p=")
	require.True(t, idx > 0, "client-final without proof: %q", msg)
	withoutProof := msg[:idx]
	attrs := scramAttrs(t, withoutProof)
	require.Equal(t, s.nonce, attrs["r"])
	proof, err := base64.StdEncoding.DecodeString(msg[idx+3:])
	require.NoError(t, err)

	authMessage := s.clientFirstBare + "," + s.serverFirst + "," + withoutProof
	saltedPassword := pbkdf2.Key([]byte(s.password), s.salt, s.iterations, sha1.Size, sha1.New)
	clientKey := testHMAC(saltedPassword, "Client Key")
	storedKey := sha1.Sum(clientKey)
	clientSignature := testHMAC(storedKey[:], authMessage)
	expected := make([]byte, len(clientKey))
	for i := range clientKey {
		expected[i] = clientKey[i] ^ clientSignature[i]
	}
	require.Equal(t, expected, proof, "client proof mismatch")

	serverSignature := testHMAC(testHMAC(saltedPassword, "Server Key"), authMessage)
	return []byte("v=" + base64.StdEncoding.EncodeToString(serverSignature))
}

func scramAttrs(t *testing.T, msg string) map[string]string {
	t.Helper()
	attrs := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		kv := strings.SplitN(part, "=", 2)
		require.Len(t, kv, 2, "bad attribute %q", part)
		attrs[kv[0]] = kv[1]
	}
	return attrs
}

func testHMAC(key []byte, message string) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}
