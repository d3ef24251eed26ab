package match

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ohler55/ojg/jp"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// JSONPath matches when every expression selects equal values from both JSON
// bodies. A body that is not valid JSON never matches.
func JSONPath(paths ...string) (Rule, error) {
	exprs := make([]jp.Expr, 0, len(paths))
	for _, p := range paths {
		x, err := jp.ParseString(p)
		if err != nil {
			return nil, fmt.Errorf("invalid JSONPath %q: %w", p, err)
		}
		exprs = append(exprs, x)
	}

	return tape.MatchFunc(func(recorded, live tape.Request) bool {
		var a, b interface{}
		if err := json.Unmarshal(recorded.Body, &a); err != nil {
			return false
		}
		if err := json.Unmarshal(live.Body, &b); err != nil {
			return false
		}
		for _, x := range exprs {
			if !reflect.DeepEqual(x.Get(a), x.Get(b)) {
				return false
			}
		}
		return true
	}), nil
}
