// Package fingerprint computes stable content digests over the mutable
// attributes of an entity. Two digests are equal iff the compared
// attributes are equal; the digest is only ever tested for inequality,
// never decoded.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// fieldSeparator joins fields before hashing. The unit separator control
// character does not occur in source data.
const fieldSeparator = "\x1f"

// Compute returns the hex digest over the ordered field list.
// Field order is significant; callers must use a fixed list per entity type.
func Compute(fields []string) string {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte(fieldSeparator))
		}
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Int formats an integer field with a fixed representation
func Int(v int64) string {
	return strconv.FormatInt(v, 10)
}
