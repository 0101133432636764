package utils

import (
	"crypto/rand"
	"math/big"
)

const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateTicketCode returns a random 8-character code from an alphabet
// with ambiguous characters (0/O, 1/I) removed, suitable for printing on
// tickets and embedding in QR codes.
func GenerateTicketCode() string {
	b := make([]byte, 8)
	max := big.NewInt(int64(len(codeCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken
			panic(err)
		}
		b[i] = codeCharset[n.Int64()]
	}
	return string(b)
}
