package license

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

// KeyLength is the fixed formatted length of a generated key, hyphens
// included: four uppercase base-36 groups of four, XXXX-XXXX-XXXX-XXXX.
const KeyLength = 19

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomSegmentLength matches the entropy of one random base-36 segment
// feeding the key material. Two segments plus the timestamp always overflow
// the 19-character limit, so short prefixes never produce short keys.
const randomSegmentLength = 13

// GenerateKey produces a best-effort unique key from an optional prefix.
//
// The raw material is prefix + two random base-36 segments + the current
// time in base-36, uppercased, re-chunked into 4-character hyphen-separated
// groups and truncated to KeyLength. Collision probability is not bounded;
// the store's unique constraint on the key column is the actual uniqueness
// guarantee and callers must treat a rejected insert as a signal to
// regenerate.
func GenerateKey(prefix string) string {
	raw := prefix + randomBase36(randomSegmentLength) + randomBase36(randomSegmentLength) +
		strconv.FormatInt(time.Now().UnixMilli(), 36)
	return formatKey(raw)
}

// formatKey uppercases raw key material and chunks it into hyphenated
// 4-character groups, truncated to KeyLength.
func formatKey(raw string) string {
	raw = strings.ToUpper(raw)

	var b strings.Builder
	b.Grow(KeyLength)
	for i := 0; i < len(raw) && b.Len() < KeyLength; i++ {
		if b.Len() > 0 && (b.Len()+1)%5 == 0 {
			b.WriteByte('-')
			if b.Len() >= KeyLength {
				break
			}
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}

// randomBase36 returns n characters drawn from the base-36 alphabet using
// the crypto/rand source.
func randomBase36(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; falling back to
		// the timestamp keeps generation total rather than panicking.
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	return string(out)
}
