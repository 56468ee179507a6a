package mevshare

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"
)

var ErrEmptyBundleBody = errors.New("empty bundle body")

// BundleHash precomputes the hash the node assigns to a bundle: the hash of
// each body entry (tx hash for literal entries, the referenced hash for
// hash-only entries, recursive hash for nested bundles), keccak-concatenated.
// A single-entry bundle hashes to the entry hash itself.
func BundleHash(bundle *SendMevBundleArgs) (common.Hash, error) {
	if len(bundle.Body) == 0 {
		return common.Hash{}, ErrEmptyBundleBody
	}

	bodyHashes := make([]common.Hash, 0, len(bundle.Body))
	for _, entry := range bundle.Body {
		switch {
		case entry.Hash != nil:
			bodyHashes = append(bodyHashes, *entry.Hash)
		case entry.Tx != nil:
			var tx types.Transaction
			if err := tx.UnmarshalBinary(*entry.Tx); err != nil {
				return common.Hash{}, err
			}
			bodyHashes = append(bodyHashes, tx.Hash())
		case entry.Bundle != nil:
			inner, err := BundleHash(entry.Bundle)
			if err != nil {
				return common.Hash{}, err
			}
			bodyHashes = append(bodyHashes, inner)
		default:
			return common.Hash{}, ErrEmptyBundleBody
		}
	}

	if len(bodyHashes) == 1 {
		// special case of bundle with a single element
		return bodyHashes[0], nil
	}
	hasher := sha3.NewLegacyKeccak256()
	for _, h := range bodyHashes {
		hasher.Write(h[:])
	}
	return common.BytesToHash(hasher.Sum(nil)), nil
}
