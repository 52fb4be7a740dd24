// Package fingerprint computes the grouping key for log events.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// MessagePrefixLength - 시그니처 계산에 사용하는 메시지 앞부분 길이 (문자 수)
const MessagePrefixLength = 200

// Compute - message[:200]|source|exceptionType 의 SHA-256 (소문자 hex)
//
// 200자 이후만 다른 메시지는 같은 시그니처가 된다.
func Compute(message, source, exceptionType string) string {
	sum := sha256.Sum256([]byte(prefix(message) + "|" + source + "|" + exceptionType))
	return hex.EncodeToString(sum[:])
}

// ComputePtr - nil source/exceptionType은 빈 문자열로 취급
func ComputePtr(message string, source, exceptionType *string) string {
	var s, e string
	if source != nil {
		s = *source
	}
	if exceptionType != nil {
		e = *exceptionType
	}
	return Compute(message, s, e)
}

func prefix(message string) string {
	n := 0
	for i := range message {
		if n == MessagePrefixLength {
			return message[:i]
		}
		n++
	}
	return message
}
