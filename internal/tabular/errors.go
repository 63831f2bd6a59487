package tabular

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseError reports a file that could not be read as a table.
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a column set that differs from the dataset's.
type ValidationError struct {
	Dataset  string
	Missing  []string
	Extra    []string
	Expected []string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File structure mismatch for '%s'. ", e.Dataset)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&sb, "Missing required columns: %s. ", strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&sb, "Extra columns (will be ignored): %s. ", strings.Join(e.Extra, ", "))
	}
	fmt.Fprintf(&sb, "Expected columns: %s", strings.Join(e.Expected, ", "))
	return sb.String()
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
