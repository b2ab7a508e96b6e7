package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"aquatrace/core/utils"
	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashPassword derives an argon2id hash over password+pepper with the given
// salt. The encoded form carries the parameters so they can change without
// invalidating stored hashes.
func HashPassword(password, salt, pepper string) string {
	key := argon2.IDKey([]byte(password+pepper), []byte(salt), argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s", argonTime, argonMemory, argonThreads, base64.RawStdEncoding.EncodeToString(key))
}

func NewSalt() (string, error) {
	return utils.RandString(32)
}

// VerifyPassword re-derives the hash with the parameters recorded in the
// stored encoding and compares in constant time.
func VerifyPassword(password, salt, pepper, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return false
	}
	var t, mem, threads int
	if _, err := fmt.Sscanf(parts[1]+" "+parts[2]+" "+parts[3], "%d %d %d", &t, &mem, &threads); err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password+pepper), []byte(salt), uint32(t), uint32(mem), uint8(threads), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
