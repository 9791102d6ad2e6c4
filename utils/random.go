package utils

import (
	"crypto/rand"
	"fmt"
)

// RoomCodeAlphabet leaves out 0/O and 1/I so codes survive being read
// aloud. Its length divides 256, which keeps byte-to-symbol mapping unbiased.
const RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateRoomCode returns a random code of length symbols from
// RoomCodeAlphabet.
func GenerateRoomCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("GenerateRoomCode: invalid length %d", length)
	}

	code := make([]byte, length)
	if _, err := rand.Read(code); err != nil {
		return "", fmt.Errorf("GenerateRoomCode: rand.Read: %w", err)
	}

	for i := range code {
		code[i] = RoomCodeAlphabet[int(code[i])%len(RoomCodeAlphabet)]
	}

	return string(code), nil
}
