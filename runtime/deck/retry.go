package deck

// RetryPolicy bounds how many sub-sessions a single slide may consume.
// Attempts counts total tries, not re-tries: the default of 2 means one
// initial attempt plus at most one retry. Every attempt runs in a fresh
// sub-session with the same prompt and tools.
type RetryPolicy struct {
	Attempts int
}

// DefaultRetryPolicy retries each failed slide exactly once.
var DefaultRetryPolicy = RetryPolicy{Attempts: 2}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}
