// internal/services/amounts.go
package services

import (
	"math"
	"math/big"
	"time"

	"github.com/javajoker/coopfund-backend/internal/models"
)

const secondsPerYear int64 = 31_536_000

// mulDiv returns floor(a*b/c). ok is false when c is zero or the result does
// not fit in an int64.
func mulDiv(a, b, c int64) (int64, bool) {
	if c == 0 {
		return 0, false
	}
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	if !r.IsInt64() {
		return 0, false
	}
	return r.Int64(), true
}

// bpsOf returns amount * bps / 10000. Callers validate bps first, so the
// result never exceeds amount.
func bpsOf(amount, bps int64) int64 {
	v, _ := mulDiv(amount, bps, models.BasisPoints)
	return v
}

// addAmounts adds two non-negative amounts, reporting overflow.
func addAmounts(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// simpleInterest is principal * rateBps * seconds / (10000 * secondsPerYear).
func simpleInterest(principal, rateBps int64, elapsed time.Duration) (int64, bool) {
	seconds := int64(elapsed / time.Second)
	if principal <= 0 || rateBps <= 0 || seconds <= 0 {
		return 0, true
	}
	r := new(big.Int).Mul(big.NewInt(principal), big.NewInt(rateBps))
	r.Mul(r, big.NewInt(seconds))
	r.Quo(r, new(big.Int).Mul(big.NewInt(models.BasisPoints), big.NewInt(secondsPerYear)))
	if !r.IsInt64() {
		return 0, false
	}
	return r.Int64(), true
}

func validBps(v int64) bool {
	return v >= 0 && v <= models.BasisPoints
}
