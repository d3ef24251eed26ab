package match

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// exprRequest is the view of a request exposed to expressions.
type exprRequest struct {
	Method  string              `expr:"method"`
	URL     string              `expr:"url"`
	Headers map[string][]string `expr:"headers"`
	Body    string              `expr:"body"`
}

type exprEnv struct {
	Recorded exprRequest `expr:"recorded"`
	Live     exprRequest `expr:"live"`
}

func toExprRequest(r tape.Request) exprRequest {
	headers := make(map[string][]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[strings.ToLower(k)] = v
	}
	return exprRequest{
		Method:  r.Method,
		URL:     r.URL,
		Headers: headers,
		Body:    string(r.Body),
	}
}

// Expr compiles a boolean expr-lang expression evaluated against the recorded
// and live requests, for example:
//
//	recorded.method == live.method && live.url startsWith recorded.url
//
// Header names are lower-cased. Evaluation errors count as a mismatch.
func Expr(expression string) (Rule, error) {
	program, err := expr.Compile(expression, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	return exprRule{program: program}, nil
}

type exprRule struct {
	program *vm.Program
}

func (r exprRule) Matches(recorded, live tape.Request) bool {
	out, err := expr.Run(r.program, exprEnv{
		Recorded: toExprRequest(recorded),
		Live:     toExprRequest(live),
	})
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
