package chara

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDialectMismatch = errors.New("no card dialect matched")
	ErrNoShape         = errors.New("card has no body shape vector")
	ErrNoSection       = errors.New("no such section")
)

// DialectFailure is why one dialect rejected payload.
type DialectFailure struct {
	Dialect string
	Err     error
}

// DialectMismatchError lists failures of every dialect tried, in order.
type DialectMismatchError struct {
	Failures []DialectFailure
}

func (e *DialectMismatchError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrDialectMismatch.Error())
	for i, f := range e.Failures {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(f.Dialect)
		sb.WriteString(": ")
		sb.WriteString(f.Err.Error())
	}
	return sb.String()
}

func (e *DialectMismatchError) Is(target error) bool {
	return target == ErrDialectMismatch
}

func errBadMarker(got string) error {
	return fmt.Errorf("unexpected marker %q", got)
}

func errCorrupt(f string, v ...interface{}) error {
	return fmt.Errorf("corrupt card: "+f, v...)
}

func errTooLarge(what string, n int64, limit int) error {
	return fmt.Errorf("%s too large (%d, limit: %d)", what, n, limit)
}

func fmtNoSection(name string) error {
	return fmt.Errorf("%w: %q", ErrNoSection, name)
}
