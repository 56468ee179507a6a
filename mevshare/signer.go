package mevshare

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrMalformedPrivateKey = errors.New("malformed signing key")

// RequestSigner produces the X-Flashbots-Signature header value for a
// serialized request body. Implementations must be pure: the header is a
// function of the body bytes and the signer identity only.
type RequestSigner interface {
	SignRequest(body []byte) (string, error)
	Address() common.Address
}

// PrivateKeySigner signs request bodies with a secp256k1 key.
// The signed message is the hex form of keccak256(body), wrapped in the
// EIP-191 personal-message envelope, so the relay can recover the signer
// address from the header alone.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeySigner(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Join(ErrMalformedPrivateKey, err)
	}
	return NewPrivateKeySignerFromKey(key), nil
}

func NewPrivateKeySignerFromKey(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) SignRequest(body []byte) (string, error) {
	hashedBody := crypto.Keccak256Hash(body).Hex()
	signature, err := crypto.Sign(accounts.TextHash([]byte(hashedBody)), s.key)
	if err != nil {
		return "", err
	}
	return s.address.Hex() + ":" + hexutil.Encode(signature), nil
}
