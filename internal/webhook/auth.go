package webhook

import "crypto/subtle"

// constantTimeEqual compares strings without leaking the position of the
// first differing byte. Both sides are padded to one length so the byte walk
// always covers the same range, and the length check is constant time too.
func constantTimeEqual(token, expected string) bool {
	size := max(len(token), len(expected))
	paddedToken := make([]byte, size)
	paddedExpected := make([]byte, size)
	copy(paddedToken, token)
	copy(paddedExpected, expected)

	sameBytes := subtle.ConstantTimeCompare(paddedToken, paddedExpected)
	sameLen := subtle.ConstantTimeEq(int32(len(token)), int32(len(expected)))
	return sameBytes&sameLen == 1
}
