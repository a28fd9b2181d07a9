package focalboard

import "math/rand"

const blockIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewBlockID generates a Focalboard block id: 27 lowercase alphanumeric
// characters.
func NewBlockID() string {
	b := make([]byte, 27)
	for i := range b {
		b[i] = blockIDAlphabet[rand.Intn(len(blockIDAlphabet))]
	}
	return string(b)
}
