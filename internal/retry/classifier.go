// Package retry maps backend error shapes to a recovery policy, executes
// bounded retries with a fixed backoff schedule, and guards logical
// operations against accidental rapid-fire invocation.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
)

// ErrorKind is the recovery class an error falls into
type ErrorKind string

const (
	// KindRelationship means the store cannot satisfy a join; the caller
	// must fall back to an unjoined query strategy. Never retried.
	KindRelationship ErrorKind = "relationship"
	// KindIntegrity is a referential-integrity violation. Never retried.
	KindIntegrity ErrorKind = "integrity"
	// KindTimeout is a timeout-class error. Retried.
	KindTimeout ErrorKind = "timeout"
	// KindRateLimit is a rate-limit-class error. Retried with a longer
	// initial delay.
	KindRateLimit ErrorKind = "rate_limit"
	// KindTransient covers the known transient network failures. Retried.
	KindTransient ErrorKind = "transient"
	// KindUnknown is everything else. Never retried.
	KindUnknown ErrorKind = "unknown"
)

// Classification is the recovery policy for one error
type Classification struct {
	Kind        ErrorKind
	Retry       bool
	UserMessage string
	LogMessage  string
}

// postgres error codes, grouped by recovery class
var (
	relationshipCodes = map[string]bool{
		"42P01": true, // undefined_table
		"42703": true, // undefined_column
		"42P10": true, // invalid_column_reference
	}
	integrityCodes = map[string]bool{
		"23503": true, // foreign_key_violation
		"23505": true, // unique_violation
		"23514": true, // check_violation
	}
)

var transientFragments = []string{
	"connection reset",
	"connection refused",
	"no such host",
	"broken pipe",
}

// Classify maps an error to its recovery policy. The classification table is
// ordered; the first matching class wins. opCtx names the logical operation
// for log messages only.
func Classify(err error, opCtx string) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown}
	}

	msg := strings.ToLower(err.Error())

	var pqErr *pq.Error
	isPQ := errors.As(err, &pqErr)

	// 1. Missing relationship / schema-join failure
	if (isPQ && relationshipCodes[string(pqErr.Code)]) ||
		strings.Contains(msg, "could not find a relationship") ||
		strings.Contains(msg, "missing from-clause") {
		return Classification{
			Kind:        KindRelationship,
			Retry:       false,
			UserMessage: "Something went wrong loading shared calendars.",
			LogMessage:  opCtx + ": store cannot satisfy join, falling back to separate queries",
		}
	}

	// 2. Referential-integrity violation
	if isPQ && integrityCodes[string(pqErr.Code)] {
		return Classification{
			Kind:        KindIntegrity,
			Retry:       false,
			UserMessage: "Your data looks out of date. Please reload and try again.",
			LogMessage:  opCtx + ": referential integrity violation",
		}
	}

	// 3. Timeout class
	if errors.Is(err, context.DeadlineExceeded) ||
		(isPQ && pqErr.Code == "57014") || // query_canceled
		isNetTimeout(err) ||
		strings.Contains(msg, "timeout") {
		return Classification{
			Kind:        KindTimeout,
			Retry:       true,
			UserMessage: "The request took too long. Retrying.",
			LogMessage:  opCtx + ": timeout, will retry",
		}
	}

	// 4. Rate-limit class
	if (isPQ && pqErr.Code == "53300") || // too_many_connections
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") {
		return Classification{
			Kind:        KindRateLimit,
			Retry:       true,
			UserMessage: "The service is busy. Retrying shortly.",
			LogMessage:  opCtx + ": rate limited, will retry with longer delay",
		}
	}

	// 5. Known transient network failures
	if errors.Is(err, io.EOF) || containsAny(msg, transientFragments) {
		return Classification{
			Kind:        KindTransient,
			Retry:       true,
			UserMessage: "A network hiccup occurred. Retrying.",
			LogMessage:  opCtx + ": transient network failure, will retry",
		}
	}

	return Classification{
		Kind:        KindUnknown,
		Retry:       false,
		UserMessage: "Something went wrong. Please try again later.",
		LogMessage:  opCtx + ": unclassified error",
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
