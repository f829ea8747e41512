package event

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"time"
)

// Fingerprint derives the dedup key from source, origin timestamp and the ordered entities.
// The timestamp is normalized to UTC so equal instants in different offsets collide.
// Every field is length-prefixed, so no byte inside a field can fake a boundary.
func Fingerprint(source string, timestamp time.Time, entities []string) string {
	h := sha256.New()
	writeField(h, source)
	writeField(h, timestamp.UTC().Format(time.RFC3339Nano))
	for _, e := range entities {
		writeField(h, e)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	h.Write([]byte(strconv.Itoa(len(s))))
	h.Write([]byte{':'})
	h.Write([]byte(s))
}
