package dice

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/chacha20"
)

// SeedSize is the length in bytes of a stream seed.
const SeedSize = chacha20.KeySize

// Seed keys a StreamSource.
type Seed [SeedSize]byte

// NewSeed draws a seed from crypto/rand.
//
// Postcondition: Returns a uniformly random seed or a non-nil error.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, fmt.Errorf("dice: reading seed: %w", err)
	}
	return s, nil
}

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn panics if n <= 0 or crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(v.Int64())
}

// StreamSource is a deterministic Source expanding a Seed with the ChaCha20
// keystream. The same seed always yields the same sequence, which lets a
// recorded fight be replayed.
type StreamSource struct {
	mu     sync.Mutex
	cipher *chacha20.Cipher
	buf    [8]byte
}

// NewStreamSource creates a StreamSource keyed by seed with a zero nonce.
//
// Postcondition: Returns a non-nil source ready for use.
func NewStreamSource(seed Seed) *StreamSource {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed by the types above.
		panic("dice: chacha20 init: " + err.Error())
	}
	return &StreamSource{cipher: c}
}

func (s *StreamSource) next() uint64 {
	var zero [8]byte
	s.cipher.XORKeyStream(s.buf[:], zero[:])
	return binary.LittleEndian.Uint64(s.buf[:])
}

// Intn returns an unbiased value in [0, n) using rejection sampling.
//
// Precondition: n > 0.
func (s *StreamSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	bound := uint64(n)
	threshold := -bound % bound
	for {
		v := s.next()
		if v >= threshold {
			return int(v % bound)
		}
	}
}
