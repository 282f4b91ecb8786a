package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// filename-safe on every filesystem the service is expected to run on
const tokenCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomToken returns n characters drawn from [a-z0-9].
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}

	var b strings.Builder
	b.Grow(n)
	buf := make([]byte, n)
	for b.Len() < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			// reject the tail of the byte range to keep the draw uniform
			if int(c) >= 256-(256%len(tokenCharset)) {
				continue
			}
			b.WriteByte(tokenCharset[int(c)%len(tokenCharset)])
			if b.Len() == n {
				break
			}
		}
	}
	return b.String(), nil
}

// GenerateRandomHex returns 2n hex characters from crypto/rand.
func GenerateRandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
