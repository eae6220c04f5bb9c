// Package hrw implements rendezvous (highest random weight) hashing. Removing
// a candidate only remaps the keys that candidate owned, which keeps key-hash
// routing stable while connection pools scale.
package hrw

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Best returns the index of the candidate with the highest score for key.
// ok=false if candidates is empty.
func Best(key string, candidates []string, seed string) (idx int, ok bool) {
	if len(candidates) == 0 {
		return -1, false
	}
	keyB := []byte(key)
	var bestScore uint64
	for i, c := range candidates {
		s := Score(keyB, c, seed)
		if i == 0 || s > bestScore || (s == bestScore && c < candidates[idx]) {
			idx, bestScore = i, s
		}
	}
	return idx, true
}

// Score returns the 64 bit weight of candidate for key.
func Score(key []byte, candidate string, seed string) uint64 {
	h, _ := blake2b.New(8, nil)
	if seed != "" {
		h.Write([]byte(seed))
		h.Write([]byte{0})
	}
	h.Write(key)
	h.Write([]byte{0})
	h.Write([]byte(candidate))
	return binary.BigEndian.Uint64(h.Sum(nil))
}
