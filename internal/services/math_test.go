package services

import (
	"errors"
	"strings"
	"testing"
)

func TestIsMathExpression(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"2+2", true},
		{" (1 + 2) * 3 ", true},
		{"2^10", true},
		{"7/2", true},
		{"2++3", true}, // admitted by the whitelist, rejected by the evaluator
		{"1.2.3", true},
		{"2+x", false},
		{"what is 2+2", false},
		{"2 % 3", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := IsMathExpression(tc.input); got != tc.expected {
				t.Errorf("IsMathExpression(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestEvaluateMath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2+2", "4"},
		{"7/2", "3.5"},
		{"1/3", "0.3333333333333333"},
		{"2*3+4", "10"},
		{"2*(3+4)", "14"},
		{"10-4-3", "3"},
		{"100/10/5", "2"},
		{"2^3^2", "512"},
		{"2^10", "1024"},
		{"2^-1", ""}, // sign not allowed after an operator
		{"2^(-1)", "0.5"},
		{"-2^2", "-4"},
		{"(-2)^2", "4"},
		{"-3+5", "2"},
		{"+3", "3"},
		{"0.1+0.2", "0.3"},
		{".5*4", "2"},
		{"5.", "5"},
		{"1.50 * 2", "3"},
		{"4^0.5", "2"},
		{"2^0.5", "1.4142135623730951"},
		{"2^100", "1267650600228229401496703205376"},
		{"  12 /  4 ", "3"},
		{"((1))", "1"},
		{"0-0", "0"},
		{"10^22+1/10^20", "10000000000000000000000"},
		{"10^22+1/2", "10000000000000000000000.5"},
		{"1/10^400", "1e-400"},
		{"-3/10^400", "-3e-400"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			result, err := EvaluateMath(tc.input)
			if tc.expected == "" {
				if err == nil {
					t.Fatalf("EvaluateMath(%q) = %q, want an error", tc.input, result)
				}
				return
			}
			if err != nil {
				t.Fatalf("EvaluateMath(%q) returned error: %v", tc.input, err)
			}
			if result.String() != tc.expected {
				t.Errorf("EvaluateMath(%q) = %q, want %q", tc.input, result.String(), tc.expected)
			}
		})
	}
}

func TestEvaluateMath_Failures(t *testing.T) {
	tests := []struct {
		input  string
		reason string
	}{
		{"2++3", reasonSyntax},
		{"2+-3", reasonSyntax},
		{"--3", reasonSyntax},
		{"2*-3", reasonSyntax},
		{"(2", reasonSyntax},
		{"2)", reasonSyntax},
		{"()", reasonSyntax},
		{"1.2.3", reasonSyntax},
		{".", reasonSyntax},
		{"2 3", reasonSyntax},
		{"", reasonSyntax},
		{"*", reasonSyntax},
		{"1/0", reasonDivByZero},
		{"1/(2-2)", reasonDivByZero},
		{"0^-1", reasonSyntax},
		{"0^(-1)", reasonDivByZero},
		{"2^5000", reasonOverflow},
		{"(10^4000)^10", reasonOverflow},
		{"10^4000*10^4000*10^4000*10^4000*10^4000", reasonOverflow},
		{"(-8)^0.5", reasonDomain},
		{"2x", reasonUnexpected},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			_, err := EvaluateMath(tc.input)
			if err == nil {
				t.Fatalf("EvaluateMath(%q) succeeded, want %q", tc.input, tc.reason)
			}
			var mathErr *MathError
			if !errors.As(err, &mathErr) {
				t.Fatalf("expected *MathError, got %T", err)
			}
			if mathErr.Reason != tc.reason {
				t.Errorf("EvaluateMath(%q) reason = %q, want %q", tc.input, mathErr.Reason, tc.reason)
			}
		})
	}
}

func TestEvaluateMath_ErrorPosition(t *testing.T) {
	_, err := EvaluateMath("2++3")
	var mathErr *MathError
	if !errors.As(err, &mathErr) {
		t.Fatalf("expected *MathError, got %v", err)
	}
	if mathErr.Pos != 2 {
		t.Errorf("expected error at offset 2, got %d", mathErr.Pos)
	}
	if !strings.Contains(err.Error(), "offset 2") {
		t.Errorf("expected offset in message, got %q", err.Error())
	}
}

func TestEvaluateMath_ExactFlag(t *testing.T) {
	r, err := EvaluateMath("1/3+1/3")
	if err != nil || !r.Exact {
		t.Fatalf("expected exact rational result, got %+v, %v", r, err)
	}

	r, err = EvaluateMath("9^0.5")
	if err != nil || r.Exact {
		t.Fatalf("expected float result for fractional power, got %+v, %v", r, err)
	}
	if r.String() != "3" {
		t.Errorf("expected 3, got %q", r.String())
	}
}
