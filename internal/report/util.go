package report

import "fmt"

// toDisplayString renders a non-string JSON value (number, bool) for a
// report cell. Objects and arrays are not expected at leaf pointers but
// are rendered rather than dropped, so a misconfigured mapping is visible
// in the output instead of silently blank.
func toDisplayString(v any) string {
	return fmt.Sprintf("%v", v)
}
