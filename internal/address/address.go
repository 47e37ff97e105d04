// Package address validates base58 account addresses and derives program addresses.
package address

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"token-curve-engine/internal/domain"
)

// Size is the length of a decoded account address.
const Size = 32

// PoolProgramID owns the pools that instruments graduate into.
const PoolProgramID = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"

// Decode decodes a base58 address and checks its length.
func Decode(addr string) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty", domain.ErrInvalidAddress)
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidAddress, addr, err)
	}
	if len(raw) != Size {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes", domain.ErrInvalidAddress, addr, len(raw))
	}
	return raw, nil
}

// ValidateInstrument checks a mint address. Mints may be program derived, so any
// 32-byte value is accepted.
func ValidateInstrument(addr string) error {
	_, err := Decode(addr)
	return err
}

// ValidateWallet checks a wallet address. Wallets are ed25519 public keys and must
// lie on the curve.
func ValidateWallet(addr string) error {
	raw, err := Decode(addr)
	if err != nil {
		return err
	}
	if !IsOnCurve(raw) {
		return fmt.Errorf("%w: %q is not an ed25519 public key", domain.ErrInvalidAddress, addr)
	}
	return nil
}

// IsOnCurve reports whether point is a valid compressed ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != Size {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// DerivePDA derives a program derived address.
// Seeds are concatenated with a bump, the program id and the "ProgramDerivedAddress"
// marker; the first bump from 255 down whose SHA256 lies off the curve wins.
func DerivePDA(seeds [][]byte, programID []byte) (string, uint8, error) {
	for bump := 255; bump > 0; bump-- {
		data := make([]byte, 0, 64+len(programID))
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return base58.Encode(hash[:]), uint8(bump), nil
		}
	}
	return "", 0, fmt.Errorf("%w: no off-curve bump for seeds", domain.ErrInvalidAddress)
}

// PoolAddress derives the address of the pool an instrument graduates into.
// Seeds: ["pool", mint]
func PoolAddress(instrument string) (string, error) {
	mint, err := Decode(instrument)
	if err != nil {
		return "", err
	}
	program, err := Decode(PoolProgramID)
	if err != nil {
		return "", err
	}
	addr, _, err := DerivePDA([][]byte{[]byte("pool"), mint}, program)
	return addr, err
}
