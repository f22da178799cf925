package judge

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// compareOutput checks actual against expected under the problem's
// comparison mode. The exact and float modes first normalize trailing
// whitespace and leading/trailing blank lines, since judges that diff
// byte-for-byte produce false wrong-answers from a missing final newline;
// the structured mode parses JSON, which ignores surrounding whitespace.
func compareOutput(actual, expected string, problem Problem) bool {
	switch problem.Compare {
	case CompareStructured:
		return compareJSON(actual, expected)
	case CompareFloat:
		tol := problem.FloatTolerance
		if tol == 0 {
			tol = 1e-6
		}
		return compareFloatTolerant(actual, expected, tol)
	default:
		return normalize(actual) == normalize(expected)
	}
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

// compareJSON does a structural comparison, treating NaN as equal to NaN,
// since a judge should not fail a submission for reproducing NaN exactly
// as expected. If either side does not parse as JSON it falls back to the
// exact mode's normalized string comparison; encoding/json rejects a bare
// NaN token, so outputs carrying NaN literals are compared that way.
func compareJSON(actual, expected string) bool {
	var a, e interface{}
	if err := json.Unmarshal([]byte(actual), &a); err != nil {
		return normalize(actual) == normalize(expected)
	}
	if err := json.Unmarshal([]byte(expected), &e); err != nil {
		return normalize(actual) == normalize(expected)
	}
	return jsonEqual(a, e)
}

func jsonEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(av) && math.IsNaN(bv) {
			return true
		}
		return av == bv
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !jsonEqual(v, bvv) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// compareFloatTolerant compares whitespace-separated tokens, treating
// parseable-as-float tokens as equal within tolerance and everything else
// as an exact string match.
func compareFloatTolerant(actual, expected string, tolerance float64) bool {
	aTokens := strings.Fields(normalize(actual))
	eTokens := strings.Fields(normalize(expected))
	if len(aTokens) != len(eTokens) {
		return false
	}
	for i := range aTokens {
		af, aErr := strconv.ParseFloat(aTokens[i], 64)
		ef, eErr := strconv.ParseFloat(eTokens[i], 64)
		if aErr == nil && eErr == nil {
			if math.Abs(af-ef) > tolerance {
				return false
			}
			continue
		}
		if aTokens[i] != eTokens[i] {
			return false
		}
	}
	return true
}
