package xmppclient

import (
	"math/big"

	"github.com/google/uuid"
	"github.com/itchyny/base58-go"
)

func generateStanzaID() (string, error) {
	idRaw, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	i := new(big.Int).SetBytes(idRaw[:])
	idEncd, err := base58.BitcoinEncoding.Encode([]byte(i.String()))
	if err != nil {
		return "", err
	}
	return string(idEncd), nil
}
