package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	codeMin   = 100000
	codeRange = 900000
)

// Issuer produces six-digit one-time codes and keeps only their bcrypt hash.
type Issuer struct {
	hashCost int
}

func NewIssuer(hashCost int) *Issuer {
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		hashCost = bcrypt.DefaultCost
	}
	return &Issuer{hashCost: hashCost}
}

// Generate returns a code drawn uniformly from [100000, 999999].
func (i *Issuer) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", fmt.Errorf("Generate: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

func (i *Issuer) Hash(code string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(code), i.hashCost)
	if err != nil {
		return "", fmt.Errorf("Hash: %w", err)
	}
	return string(h), nil
}

func (i *Issuer) Matches(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// Issue generates a code and its hash in one step.
func (i *Issuer) Issue() (code, hash string, err error) {
	code, err = i.Generate()
	if err != nil {
		return "", "", fmt.Errorf("Issue: %w", err)
	}
	hash, err = i.Hash(code)
	if err != nil {
		return "", "", fmt.Errorf("Issue: %w", err)
	}
	return code, hash, nil
}
