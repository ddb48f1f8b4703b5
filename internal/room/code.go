package room

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const CodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// CodeGenerator returns a fresh candidate code.
type CodeGenerator func() (string, error)

func NanoidCodes(length int) CodeGenerator {
	return func() (string, error) {
		return gonanoid.Generate(CodeAlphabet, length)
	}
}

// NormalizeCode trims and lowercases code and checks it against the code
// shape. ok is false for anything that could never name a room.
func NormalizeCode(code string, length int) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) != length {
		return code, false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return code, false
		}
	}
	return code, true
}
