package nanoid

import (
	"crypto/rand"
)

const idLetters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
const defaultLen = 5

// largest multiple of len(idLetters) that fits in a byte, to keep the draw uniform
const maxByte = 255 - (256 % len(idLetters))

func New() string {
	return NewWithLen(defaultLen)
}

func NewWithLen(length int) string {
	if length <= 0 {
		return ""
	}
	result := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(result) < length {
		if _, err := rand.Read(buf); err != nil {
			panic("nanoid: crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			if int(b) > maxByte {
				continue
			}
			result = append(result, idLetters[int(b)%len(idLetters)])
			if len(result) == length {
				break
			}
		}
	}
	return string(result)
}
