package judge

import "testing"

func TestCompareOutputExactTrimsTrailingWhitespace(t *testing.T) {
	problem := Problem{Compare: CompareExact}

	cases := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{"identical", "hello\n", "hello\n", true},
		{"missing trailing newline", "hello", "hello\n", true},
		{"trailing spaces", "hello  \n", "hello\n", true},
		{"extra blank lines", "hello\n\n\n", "hello\n", true},
		{"different content", "hello\n", "world\n", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := compareOutput(tc.actual, tc.expected, problem)
			if got != tc.want {
				t.Errorf("compareOutput(%q, %q) = %v, want %v", tc.actual, tc.expected, got, tc.want)
			}
		})
	}
}

func TestCompareOutputStructuredJSON(t *testing.T) {
	problem := Problem{Compare: CompareStructured}

	cases := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{"same object different key order", `{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{"nan equals nan", `{"x":NaN}`, `{"x":NaN}`, true},
		{"array mismatch length", `[1,2]`, `[1,2,3]`, false},
		{"nested object match", `{"a":{"b":[1,2]}}`, `{"a":{"b":[1,2]}}`, true},
		{"invalid json", `not json`, `{}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := compareOutput(tc.actual, tc.expected, problem)
			if got != tc.want {
				t.Errorf("compareOutput(%q, %q) = %v, want %v", tc.actual, tc.expected, got, tc.want)
			}
		})
	}
}

func TestCompareOutputFloatTolerance(t *testing.T) {
	problem := Problem{Compare: CompareFloat, FloatTolerance: 1e-4}

	cases := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{"within tolerance", "3.14159", "3.14160", true},
		{"outside tolerance", "3.14", "3.20", false},
		{"mixed tokens", "answer 2.00001", "answer 2.0", true},
		{"non numeric mismatch", "yes", "no", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := compareOutput(tc.actual, tc.expected, problem)
			if got != tc.want {
				t.Errorf("compareOutput(%q, %q) = %v, want %v", tc.actual, tc.expected, got, tc.want)
			}
		})
	}
}
