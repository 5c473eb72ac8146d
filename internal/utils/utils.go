package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RoomCodeLength is the fixed length of the numeric room code.
const RoomCodeLength = 4

// NewRoomCode returns a random fixed-length digit string. Leading zeros are
// allowed, so "0042" is a valid code.
func NewRoomCode() string {
	max := big.NewInt(1)
	for range RoomCodeLength {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(fmt.Sprintf("room code generation: %v", err))
	}
	return fmt.Sprintf("%0*d", RoomCodeLength, n)
}

// ValidRoomCode reports whether s is a well-formed room code.
func ValidRoomCode(s string) bool {
	if len(s) != RoomCodeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TruncateString shortens s to maxLen runes, appending "..." when truncated.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
