package imaging

import (
	"image"

	apperrors "image-collector/internal/common/errors"

	"github.com/corona10/goimagehash"
)

// DuplicateDistance is the Hamming distance below which two dHashes are
// treated as the same picture.
const DuplicateDistance = 10

// Fingerprint returns the 64-bit difference hash of img.
func Fingerprint(img image.Image) (uint64, error) {
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, apperrors.NewProcessingFailedError("fingerprint", err)
	}
	return h.GetHash(), nil
}

// Distance is the Hamming distance between two difference hashes.
func Distance(a, b uint64) int {
	d, err := goimagehash.NewImageHash(a, goimagehash.DHash).Distance(goimagehash.NewImageHash(b, goimagehash.DHash))
	if err != nil {
		return 64
	}
	return d
}

// IsDuplicate reports whether hash is within threshold of any known hash.
// Zero hashes are ignored.
func IsDuplicate(hash uint64, known []uint64, threshold int) bool {
	if hash == 0 {
		return false
	}
	for _, k := range known {
		if k != 0 && Distance(hash, k) < threshold {
			return true
		}
	}
	return false
}
