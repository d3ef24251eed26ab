// Package match provides the rules tapes use to decide whether a live request
// corresponds to a recorded interaction.
//
// Every rule is a pure predicate over two requests, the recorded one first and
// the live one second. Rules compose with All (logical AND):
//
//	rule := match.All(match.Method, match.URI, match.Headers("Accept"))
//	t := tape.New("github", tape.WithRule(rule))
//
// Available variants:
//
//   - Method, URI, Host, Path, Query: request line comparisons
//   - Headers: recorded headers must be present on the live request
//   - Body, BodyHash: raw or canonical-JSON body comparison
//   - JSONPath: values selected by JSONPath expressions must be equal
//   - Expr: an expr-lang boolean expression over recorded and live
//
// Parse builds a rule from rule names, which is how configuration selects them.
package match
