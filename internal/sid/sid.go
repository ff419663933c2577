// Package sid generates session identifiers.
package sid

import "math/rand/v2"

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	length   = 30
)

// New returns a 30-character alphanumeric session id sampled uniformly from
// alphabet. It is not a cryptographically secure value and collisions are
// not defended against; at realistic connection counts the probability is
// negligible.
func New() string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(buf)
}
