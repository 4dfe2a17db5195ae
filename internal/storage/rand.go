package storage

import "crypto/rand"

const suffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// randSuffix returns n random lowercase alphanumeric characters, used to
// disambiguate memo IDs and asset filenames.
func randSuffix(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = suffixCharset[int(b[i])%len(suffixCharset)]
	}
	return string(b)
}
