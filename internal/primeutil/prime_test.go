package primeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPrime(t *testing.T) {
	for _, n := range []uint64{2, 3, 611953, 479001599} {
		assert.Truef(t, IsPrime(n), "expected %d to be prime", n)
	}
	for _, n := range []uint64{0, 1, 12742382} {
		assert.Falsef(t, IsPrime(n), "expected %d to be composite", n)
	}
}

func TestNextPrime(t *testing.T) {
	cases := []struct {
		n, want uint64
	}{
		{0, 2},
		{1, 2},
		{2, 2},
		{3, 3},
		{4, 5},
		{8, 11},
		{32, 37},
		{16, 17},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NextPrime(c.n), "NextPrime(%d)", c.n)
	}
}
