package jsonld

import "fmt"

// Report collects the outcome of one validation call
type Report struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewReport returns an empty, valid report
func NewReport() *Report {
	return &Report{Valid: true, Errors: []string{}, Warnings: []string{}}
}

// AddError records an error and marks the report invalid
func (r *Report) AddError(path, format string, args ...any) {
	r.Errors = append(r.Errors, prefixed(path, fmt.Sprintf(format, args...)))
	r.Valid = false
}

// AddWarning records a warning; validity is unchanged
func (r *Report) AddWarning(path, format string, args ...any) {
	r.Warnings = append(r.Warnings, prefixed(path, fmt.Sprintf(format, args...)))
}

// Merge appends other's findings to r
func (r *Report) Merge(other Report) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if len(r.Errors) > 0 {
		r.Valid = false
	}
}

// ErrorCount returns the number of errors
func (r *Report) ErrorCount() int { return len(r.Errors) }

// TopErrors returns at most n errors, for logs and event details
func (r *Report) TopErrors(n int) []string {
	if len(r.Errors) <= n {
		return r.Errors
	}
	return r.Errors[:n]
}

// JoinPath extends a report path with a field and optional list index
func JoinPath(base, field string, index int) string {
	seg := field
	if index >= 0 {
		seg = fmt.Sprintf("%s[%d]", field, index)
	}
	if base == "" {
		return seg
	}
	return base + "." + seg
}

func prefixed(path, msg string) string {
	if path == "" {
		return msg
	}
	return path + ": " + msg
}
