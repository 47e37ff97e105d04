package idhash

import (
	"crypto/ed25519"
	"crypto/sha256"
	"strings"

	"github.com/mr-tron/base58"
)

// DeriveMint derives a deterministic 32-byte base58 mint address.
// Formula: base58(SHA256("mint|" + parts joined by "|"))
func DeriveMint(parts ...string) string {
	hash := sha256.Sum256([]byte("mint|" + strings.Join(parts, "|")))
	return base58.Encode(hash[:])
}

// DeriveWallet derives a deterministic wallet address from a label.
// The address is the ed25519 public key of seed SHA256("wallet|" + label), so it is
// always a valid curve point.
func DeriveWallet(label string) string {
	seed := sha256.Sum256([]byte("wallet|" + label))
	pub := ed25519.NewKeyFromSeed(seed[:]).Public().(ed25519.PublicKey)
	return base58.Encode(pub)
}
