package pe

import (
	"math"

	"github.com/pecarve/pecarve/internal/blob"
)

// CalculateEntropy calculates Shannon entropy for a given data block.
// Entropy value ranges from 0 (completely uniform) to 8 (completely
// random). High entropy (>7.0) often indicates encryption or
// compression.
func CalculateEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	// Shannon entropy: H = -Σ(p(x) * log2(p(x)))
	var entropy float64
	dataLen := float64(len(data))
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / dataLen
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// sectionEntropy materializes a section blob and calculates its
// entropy. Sections without file backing score zero.
func sectionEntropy(b blob.Blob) (float64, error) {
	if b == nil || b.Len() == 0 {
		return 0.0, nil
	}
	data, err := blob.Bytes(b)
	if err != nil {
		return 0.0, err
	}
	return CalculateEntropy(data), nil
}
