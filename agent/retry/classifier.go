package retry

import (
	"context"
	"errors"
	"strings"
)

// Class categorizes a failure for retry decisions.
type Class string

const (
	ClassTransient    Class = "transient"
	ClassNonRetryable Class = "non_retryable"
	ClassUnknown      Class = "unknown"
)

var (
	// NonRetryableHints win over TransientHints: "connection forbidden" must not be retried.
	NonRetryableHints = []string{
		"can view",
		"permission",
		"forbidden",
		"unauthorized",
		"401",
		"403",
		"invalid token",
		"not authorized",
		"access denied",
	}

	TransientHints = []string{
		"rate limit",
		"429",
		"timeout",
		"timed out",
		"temporarily",
		"service unavailable",
		"connection reset",
		"connection aborted",
		"connection error",
		"502",
		"503",
		"504",
		"try again",
	}
)

// Permanent marks an error as never retryable regardless of its text.
type Permanent interface {
	Permanent() bool
}

// Classifier matches lower-cased error text against hint substrings.
type Classifier struct {
	NonRetryable []string
	Transient    []string
}

var DefaultClassifier = Classifier{
	NonRetryable: NonRetryableHints,
	Transient:    TransientHints,
}

// Classify uses DefaultClassifier.
func Classify(err error) Class {
	return DefaultClassifier.Classify(err)
}

func (c Classifier) Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ClassNonRetryable
	}
	var p Permanent
	if errors.As(err, &p) && p.Permanent() {
		return ClassNonRetryable
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, c.NonRetryable) {
		return ClassNonRetryable
	}
	if containsAny(msg, c.Transient) {
		return ClassTransient
	}
	return ClassUnknown
}

func containsAny(msg string, hints []string) bool {
	for _, hint := range hints {
		if hint != "" && strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
