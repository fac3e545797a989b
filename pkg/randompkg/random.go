// Package randompkg provides functionality for generating random test values.
package randompkg

import (
	"crypto/rand"
	"math/big"
)

// Intn is a shortcut for generating a random integer between 0 and max using crypto/rand.
func Intn(max int64) int64 {
	nBig, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		panic(err)
	}

	return nBig.Int64()
}

// Between generates a random integer in [min, max].
func Between(min, max int64) int64 {
	return min + Intn(max-min+1)
}

// UserID generates a random positive user id.
func UserID() int64 {
	return Between(1, 1_000_000)
}

// Amount generates a random positive point amount.
func Amount() int64 {
	return Between(1, 10_000)
}
