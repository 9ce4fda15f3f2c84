package cron

import (
	"errors"
	"fmt"
)

// ErrFormat is matched by every parse failure (errors.Is).
var ErrFormat = errors.New("cron: invalid expression")

// FormatError describes why an expression or one of its fields was rejected.
// Token is empty for whole-expression problems such as a wrong field count.
type FormatError struct {
	Expr   string
	Field  Field
	Token  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("cron: invalid expression %q: %s", e.Expr, e.Reason)
	}
	return fmt.Sprintf("cron: invalid %s token %q in %q: %s", e.Field, e.Token, e.Expr, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }
