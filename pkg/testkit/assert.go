package testkit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONSubset checks that every key in expected is present in actual
// with the same value. Keys actual has beyond expected are ignored, so a
// scenario only pins the fields it cares about. Arrays compare by length
// and element.
func AssertJSONSubset(t testing.TB, expected any, actual []byte) {
	t.Helper()

	var exp, act any
	raw, err := json.Marshal(expected)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &exp))
	if !assert.NoError(t, json.Unmarshal(actual, &act), "actual response is not JSON\nbody: %s", actual) {
		return
	}

	if diffs := DiffJSON("", exp, act); len(diffs) > 0 {
		sort.Strings(diffs)
		t.Errorf("response body mismatch:\n%s\nbody: %s", strings.Join(diffs, "\n"), actual)
	}
}

// DiffJSON lists where actual departs from expected, in readable form.
func DiffJSON(path string, expected, actual any) []string {
	var diffs []string
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return append(diffs, fmt.Sprintf("  %s: expected object, got %T", keyPath(path), actual))
		}
		for k, ev := range exp {
			p := keyPath(path) + "." + k
			av, exists := act[k]
			if !exists {
				diffs = append(diffs, fmt.Sprintf("  %s: missing", p))
				continue
			}
			diffs = append(diffs, DiffJSON(p, ev, av)...)
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return append(diffs, fmt.Sprintf("  %s: expected array, got %T", keyPath(path), actual))
		}
		if len(exp) != len(act) {
			diffs = append(diffs, fmt.Sprintf("  %s: length expected=%d actual=%d", keyPath(path), len(exp), len(act)))
		}
		for i := 0; i < len(exp) && i < len(act); i++ {
			diffs = append(diffs, DiffJSON(fmt.Sprintf("%s[%d]", keyPath(path), i), exp[i], act[i])...)
		}
	default:
		if fmt.Sprint(expected) != fmt.Sprint(actual) {
			diffs = append(diffs, fmt.Sprintf("  %s:\n    - %v\n    + %v", keyPath(path), expected, actual))
		}
	}
	return diffs
}

func keyPath(path string) string {
	if path == "" {
		return "root"
	}
	return strings.TrimPrefix(path, ".")
}
