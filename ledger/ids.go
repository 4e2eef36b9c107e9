package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 12
)

// NewRedemptionCode returns a random 12-character code over [A-Z0-9].
func NewRedemptionCode() (string, error) {
	var b strings.Builder
	b.Grow(codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NewPurchaseID returns an id of the form PUR-XXXXXXXX.
func NewPurchaseID() string {
	id := uuid.New()
	return "PUR-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
