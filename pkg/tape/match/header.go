package match

import (
	"net/http"
	"slices"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// Headers matches when the recorded headers are a subset of the live ones:
// every recorded value must be present on the live request.
//
// When names are given only those headers are compared, and they must carry
// the same set of values on both sides (absent on both counts as equal).
func Headers(names ...string) Rule {
	if len(names) == 0 {
		return tape.MatchFunc(headerSubset)
	}

	canonical := make([]string, len(names))
	for i, n := range names {
		canonical[i] = http.CanonicalHeaderKey(n)
	}
	return tape.MatchFunc(func(recorded, live tape.Request) bool {
		for _, name := range canonical {
			if !sameValues(recorded.Headers.Values(name), live.Headers.Values(name)) {
				return false
			}
		}
		return true
	})
}

func headerSubset(recorded, live tape.Request) bool {
	for name, values := range recorded.Headers {
		actual := live.Headers.Values(name)
		for _, v := range values {
			if !slices.Contains(actual, v) {
				return false
			}
		}
	}
	return true
}

func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = slices.Clone(a)
	b = slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
