package store

import (
	"crypto/rand"
	"regexp"
)

const (
	publicIDLength = 10
	joinCodeLength = 6

	publicIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var joinCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// ValidJoinCode reports whether code has the shape produced by JoinCode.
func ValidJoinCode(code string) bool { return joinCodePattern.MatchString(code) }

// PublicID returns a short URL-safe identifier.
func PublicID() (string, error) { return randomString(publicIDAlphabet, publicIDLength) }

// JoinCode returns a 6 character upper-case alphanumeric code.
func JoinCode() (string, error) { return randomString(joinCodeAlphabet, joinCodeLength) }

// randomString draws from crypto/rand, rejecting bytes that would bias the
// distribution toward the start of the alphabet.
func randomString(alphabet string, n int) (string, error) {
	limit := 256 - 256%len(alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
