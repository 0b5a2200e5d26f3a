package core

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// lockIDPrefixLen is the length/header prefix the platform puts in front of
// every packed physical lock id. It is not part of the identifier.
//
// All identifiers seen so far carry exactly two prefix bytes. Longer transponder
// formats have not been confirmed, so the prefix is not inferred from the data.
const lockIDPrefixLen = 2

// DecodeLockID turns a base64 packed physical lock id into the dash separated
// lowercase hex form printed on the lock, e.g. "AAECAwQFBg==" -> "02-03-04-05-06".
func DecodeLockID(packed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(packed)
	if err != nil {
		return "", &DecodeError{Input: packed, Reason: "invalid base64", Err: err}
	}
	if len(raw) <= lockIDPrefixLen {
		return "", &DecodeError{Input: packed, Reason: "no identifier bytes after prefix"}
	}

	h := hex.EncodeToString(raw[lockIDPrefixLen:])
	var b strings.Builder
	b.Grow(len(h) + len(h)/2 - 1)
	for i := 0; i < len(h); i += 2 {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(h[i : i+2])
	}
	return b.String(), nil
}
