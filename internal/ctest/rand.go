package ctest

import (
	"crypto/sha256"
	"math/rand/v2"
	"testing"
)

// RandomDataForTest returns a byte slice of size sz
// containing pseudorandom data, derived from a seed based on the test name.
func RandomDataForTest(t testing.TB, sz int) []byte {
	seed := sha256.Sum256([]byte(t.Name()))
	chacha := rand.NewChaCha8(seed)

	out := make([]byte, sz)
	if _, err := chacha.Read(out); err != nil {
		panic(err)
	}

	return out
}

// CompressibleDataForTest returns sz bytes that compress well:
// short runs drawn from a small alphabet seeded by the test name.
func CompressibleDataForTest(t testing.TB, sz int) []byte {
	seed := sha256.Sum256([]byte(t.Name()))
	r := rand.New(rand.NewChaCha8(seed))

	const alphabet = "abcd"
	out := make([]byte, 0, sz)
	for len(out) < sz {
		c := alphabet[r.IntN(len(alphabet))]
		run := 16 + r.IntN(48)
		for i := 0; i < run && len(out) < sz; i++ {
			out = append(out, c)
		}
	}
	return out
}
