package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/pquerna/otp"
)

// GenerateOTP returns a numeric one-time code of the given length (6 or 8),
// drawn uniformly from [0, 10^digits) and zero padded.
func GenerateOTP(digits otp.Digits) (string, error) {
	if digits != otp.DigitsSix && digits != otp.DigitsEight {
		return "", fmt.Errorf("cryptox: unsupported otp length %d", digits)
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits.Length())), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("cryptox: otp: %w", err)
	}
	return digits.Format(int32(n.Int64())), nil
}
