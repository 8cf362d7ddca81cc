// Package ids generates prefixed public identifiers.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Alphanumeric returns prefix followed by n random letters and digits.
func Alphanumeric(prefix string, n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return prefix + string(b), nil
}

// Hex returns prefix followed by n random lowercase hex characters.
func Hex(prefix string, n int) (string, error) {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return prefix + hex.EncodeToString(b)[:n], nil
}

func Order() (string, error)   { return Alphanumeric("order_", 16) }
func Payment() (string, error) { return Alphanumeric("pay_", 16) }
func Refund() (string, error)  { return Hex("rfnd_", 16) }
