package rpc

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

var tooManyResultsPattern = regexp.MustCompile(`(?i)query returned more than \d+ results`)

// IsTooManyResultsError reports whether err is a node rejecting an
// eth_getLogs call because the range produced too many results.
func IsTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}

	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		if tooManyResultsPattern.MatchString(dataErr.Error()) {
			return true
		}
	}

	return tooManyResultsPattern.MatchString(err.Error())
}

var suggestedRangePattern = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)

// ParseSuggestedBlockRange extracts a node-suggested [from, to] block range
// from an error message, if present. ok is false when no range was found.
func ParseSuggestedBlockRange(errMsg string) (from, to uint64, ok bool) {
	m := suggestedRangePattern.FindStringSubmatch(errMsg)
	if m == nil {
		return 0, 0, false
	}

	fromVal, err := strconv.ParseUint(strings.TrimPrefix(m[1], "0x"), 16, 64)
	if err != nil {
		return 0, 0, false
	}
	toVal, err := strconv.ParseUint(strings.TrimPrefix(m[2], "0x"), 16, 64)
	if err != nil {
		return 0, 0, false
	}

	return fromVal, toVal, true
}

// retryableError reports whether an RPC failure is transient and worth
// retrying: network errors, timeouts, rate limiting, and server-side
// failures. Protocol-level rejections (malformed params, too-many-results)
// are not retryable by themselves — callers handle those separately.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "gateway"),
		strings.Contains(msg, "connection pool"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "i/o timeout"):
		return true
	}

	return false
}
