// Package retry implements the retry policy: exponential backoff with
// full jitter, an attempt budget, and the classification of which
// outcomes are retryable.
package retry
