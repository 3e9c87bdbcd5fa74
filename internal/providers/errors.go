package providers

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorAuth      ErrorType = "auth"
	ErrorTimeout   ErrorType = "timeout"
	ErrorTransient ErrorType = "transient"
	ErrorMalformed ErrorType = "malformed"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

var serverErrorRe = regexp.MustCompile(`error 5\d\d`)

// ClassifyError buckets a provider failure for logs and the call audit.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"):
		return ErrorQuota
	case strings.Contains(e, "429"), strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"):
		return ErrorRate
	case strings.Contains(e, "error 401"), strings.Contains(e, "error 403"), strings.Contains(e, "key missing"):
		return ErrorAuth
	case strings.Contains(e, "timeout"), strings.Contains(e, "deadline exceeded"):
		return ErrorTimeout
	case strings.Contains(e, "context length"), strings.Contains(e, "context_length"), strings.Contains(e, "too long"):
		return ErrorContext
	case serverErrorRe.MatchString(e), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"),
		strings.Contains(e, "connection refused"), strings.Contains(e, "eof"):
		return ErrorTransient
	case strings.Contains(e, "decode"), strings.Contains(e, "empty choices"):
		return ErrorMalformed
	default:
		return ErrorPermanent
	}
}
