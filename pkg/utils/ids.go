package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateSessionID fingerprints a caller; the value rotates every hour.
func GenerateSessionID(input string) string {
	hash := md5.Sum([]byte(input + fmt.Sprintf("%d", time.Now().Unix()/3600)))
	return hex.EncodeToString(hash[:])[:16]
}

// MD5Hash generates MD5 hash of input string
func MD5Hash(input string) string {
	hash := md5.Sum([]byte(input))
	return hex.EncodeToString(hash[:])
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}
