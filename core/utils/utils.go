package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"time"
)

func NowUTC() time.Time {
	return time.Now().UTC()
}

// RandString returns n hex characters from crypto/rand.
func RandString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid length")
	}
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:n], nil
}

var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,63}$`)

func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return errors.New("invalid username")
	}
	return nil
}
