package match

import (
	"net/url"
	"slices"
	"strings"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// Rule is an alias kept local so callers need only import this package.
type Rule = tape.MatchRule

// all is the AND composition of rules.
type all []Rule

func (a all) Matches(recorded, live tape.Request) bool {
	for _, r := range a {
		if !r.Matches(recorded, live) {
			return false
		}
	}
	return true
}

// All matches when every rule matches. With no rules it matches everything.
func All(rules ...Rule) Rule {
	flat := make(all, 0, len(rules))
	for _, r := range rules {
		if r == nil {
			continue
		}
		if nested, ok := r.(all); ok {
			flat = append(flat, nested...)
			continue
		}
		flat = append(flat, r)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return flat
}

// Default matches on method and URI.
func Default() Rule {
	return All(Method, URI)
}

// Method compares HTTP methods case-insensitively.
var Method Rule = tape.MatchFunc(func(recorded, live tape.Request) bool {
	return strings.EqualFold(recorded.Method, live.Method)
})

// URI compares scheme, host, path and query. Query parameters may appear in
// any order; fragments are ignored.
var URI Rule = tape.MatchFunc(func(recorded, live tape.Request) bool {
	a, errA := url.Parse(recorded.URL)
	b, errB := url.Parse(live.URL)
	if errA != nil || errB != nil {
		return recorded.URL == live.URL
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Host, b.Host) &&
		samePath(a.Path, b.Path) &&
		sameQuery(a.Query(), b.Query())
})

// Host compares the URL host case-insensitively.
var Host Rule = tape.MatchFunc(func(recorded, live tape.Request) bool {
	a, errA := url.Parse(recorded.URL)
	b, errB := url.Parse(live.URL)
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(a.Host, b.Host)
})

// Path compares the URL path only.
var Path Rule = tape.MatchFunc(func(recorded, live tape.Request) bool {
	a, errA := url.Parse(recorded.URL)
	b, errB := url.Parse(live.URL)
	if errA != nil || errB != nil {
		return false
	}
	return samePath(a.Path, b.Path)
})

// Query compares query parameters regardless of their order.
var Query Rule = tape.MatchFunc(func(recorded, live tape.Request) bool {
	a, errA := url.Parse(recorded.URL)
	b, errB := url.Parse(live.URL)
	if errA != nil || errB != nil {
		return false
	}
	return sameQuery(a.Query(), b.Query())
})

func samePath(a, b string) bool {
	if a == "" {
		a = "/"
	}
	if b == "" {
		b = "/"
	}
	return a == b
}

func sameQuery(a, b url.Values) bool {
	if len(a) != len(b) {
		return false
	}
	for key, av := range a {
		bv, ok := b[key]
		if !ok || !slices.Equal(av, bv) {
			return false
		}
	}
	return true
}
