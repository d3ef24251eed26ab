package match

import (
	"bytes"
	"encoding/json"

	"github.com/cespare/xxhash/v2"
	"github.com/gowebpki/jcs"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// Body compares request bodies byte for byte.
var Body Rule = tape.MatchFunc(func(recorded, live tape.Request) bool {
	return bytes.Equal(recorded.Body, live.Body)
})

// BodyHash compares body digests. JSON bodies are canonicalised (RFC 8785)
// before hashing, so key order and insignificant whitespace do not matter.
var BodyHash Rule = tape.MatchFunc(func(recorded, live tape.Request) bool {
	return HashBody(recorded.Body) == HashBody(live.Body)
})

// HashBody returns the xxhash64 digest used by BodyHash.
func HashBody(body []byte) uint64 {
	if len(body) > 0 && json.Valid(body) {
		if canonical, err := jcs.Transform(body); err == nil {
			return xxhash.Sum64(canonical)
		}
	}
	return xxhash.Sum64(body)
}
