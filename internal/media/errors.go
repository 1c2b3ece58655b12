package media

import "fmt"

// maxDiagnosticLen bounds how much tool output is retained in an error.
const maxDiagnosticLen = 2000

// AcquisitionError reports that a job's source media could not be obtained:
// missing upload, unreachable URL, or a failed audio extraction.
type AcquisitionError struct {
	Source  string
	Message string
	Err     error
}

func (e *AcquisitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("acquire %s: %s", e.Source, e.Message)
}

func (e *AcquisitionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NormalizationError reports that audio conversion failed after the
// lenient fallback attempt. Message carries the converter's diagnostic,
// truncated to a bound.
type NormalizationError struct {
	Message string
	Err     error
}

func (e *NormalizationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("normalize audio: %s", e.Message)
}

func (e *NormalizationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func truncateDiagnostic(s string) string {
	if len(s) <= maxDiagnosticLen {
		return s
	}
	return s[:maxDiagnosticLen] + "... (truncated)"
}
