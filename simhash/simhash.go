// Package simhash fingerprints page markup so layout changes on a target
// can be noticed between runs.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Fingerprint computes a 64-bit SimHash of the whitespace-separated words of text.
func Fingerprint(text string) uint64 {
	return FingerprintTokens(strings.Fields(text))
}

// FingerprintTokens computes a 64-bit SimHash over tokens using FNV-64a.
// An empty token list yields 0.
func FingerprintTokens(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Drifted reports whether cur differs from prev by more than threshold bits.
// A zero fingerprint on either side means "unknown" and never drifts.
func Drifted(prev, cur uint64, threshold int) bool {
	if prev == 0 || cur == 0 {
		return false
	}
	return Distance(prev, cur) > threshold
}
