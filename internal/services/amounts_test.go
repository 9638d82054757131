// internal/services/amounts_test.go
package services

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c int64
		want    int64
		ok      bool
	}{
		{"floors", 10, 1, 3, 3, true},
		{"zero divisor", 10, 1, 0, 0, false},
		{"wide intermediate", math.MaxInt64, 5000, 10000, math.MaxInt64 / 2, true},
		{"exact max", math.MaxInt64, 1, 1, math.MaxInt64, true},
		{"units times price", 10_000_000_000_000, 1_000_000, 1, 0, false},
		{"premium on max price", math.MaxInt64, 10001, 10000, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mulDiv(tt.a, tt.b, tt.c)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddAmounts(t *testing.T) {
	sum, ok := addAmounts(2, 3)
	assert.True(t, ok)
	assert.Equal(t, int64(5), sum)

	_, ok = addAmounts(math.MaxInt64, 1)
	assert.False(t, ok)

	sum, ok = addAmounts(math.MaxInt64, 0)
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), sum)
}

func TestBpsOf(t *testing.T) {
	assert.Equal(t, int64(50), bpsOf(250, 2000))
	assert.Equal(t, int64(0), bpsOf(4, 1))
}

func TestSimpleInterest(t *testing.T) {
	year := 365 * 24 * time.Hour

	tests := []struct {
		name      string
		principal int64
		rate      int64
		elapsed   time.Duration
		want      int64
		ok        bool
	}{
		{"one year at 10%", 1_000_000, 1000, year, 100_000, true},
		{"half a year", 1_000_000, 1000, year / 2, 50_000, true},
		{"zero rate", 1_000_000, 0, year, 0, true},
		{"no principal", 0, 1000, year, 0, true},
		{"negative elapsed", 1_000_000, 1000, -time.Hour, 0, true},
		{"sub-second", 1_000_000, 1000, 999 * time.Millisecond, 0, true},
		{"rounds down", 1, 10000, year - time.Second, 0, true},
		{"overflows", math.MaxInt64, 10000, 100 * year, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := simpleInterest(tt.principal, tt.rate, tt.elapsed)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidBps(t *testing.T) {
	assert.True(t, validBps(0))
	assert.True(t, validBps(10000))
	assert.False(t, validBps(-1))
	assert.False(t, validBps(10001))
}
