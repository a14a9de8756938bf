package voucher

import (
	"crypto/rand"
)

// generateCode returns a random code of the given length drawn from
// Alphabet, using crypto/rand (grounded on the teacher's pkg/apikey
// generateAPIKey idiom: rand.Read into a fixed-size buffer, panic on
// entropy-source failure since it indicates a broken runtime, not a
// recoverable condition).
func generateCode(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	out := make([]byte, length)
	for i, v := range b {
		out[i] = Alphabet[int(v)%len(Alphabet)]
	}
	return string(out)
}
