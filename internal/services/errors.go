package services

import "fmt"

type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

// BusyError means no generation slot became free in time.
type BusyError struct{ Message string }

func (e *BusyError) Error() string { return e.Message }

// GenerationError wraps any failure inside the text generation path.
type GenerationError struct {
	Stage   string // "tokenize", "generate" or "decode"
	Timeout bool
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("generation %s timed out: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("generation %s failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// MathError reports why an expression could not be evaluated.
type MathError struct {
	Reason string
	Pos    int
}

func (e *MathError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("math: %s at offset %d", e.Reason, e.Pos)
	}
	return "math: " + e.Reason
}

const (
	reasonSyntax     = "syntax error"
	reasonDivByZero  = "division by zero"
	reasonOverflow   = "result too large"
	reasonDomain     = "result is not a real number"
	reasonUnexpected = "unexpected character"
)
