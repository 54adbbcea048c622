package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

// GenerateRandomNumber returns a number between min and max (inclusive).
func GenerateRandomNumber(min, max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return min
	}
	return min + int(n.Int64())
}

// MemberNumber builds a member number from up to four letters of the last
// name followed by four random digits, e.g. "SMIT0427".
func MemberNumber(lastName string) string {
	var prefix strings.Builder
	for _, r := range strings.ToUpper(lastName) {
		if r <= unicode.MaxASCII && unicode.IsLetter(r) {
			prefix.WriteRune(r)
			if prefix.Len() == 4 {
				break
			}
		}
	}
	if prefix.Len() == 0 {
		prefix.WriteString("TAB")
	}
	return fmt.Sprintf("%s%04d", prefix.String(), GenerateRandomNumber(0, 9999))
}
