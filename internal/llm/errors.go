package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	hearthErrors "hearth/internal/errors"
)

// wrapRequestError classifies transport-level failures from the HTTP client.
// Context cancellation passes through untouched so callers can distinguish
// user aborts from provider trouble; everything else is transient as far as
// the retry layer is concerned.
func wrapRequestError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return hearthErrors.NewTransientError(err,
			"The model provider timed out. Retrying with backoff.")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return hearthErrors.NewTransientError(err,
			"Network timeout talking to the model provider. Retrying.")
	}
	return hearthErrors.NewTransientError(err,
		fmt.Sprintf("Could not reach the model provider: %v. Retrying.", err))
}

// mapHTTPError converts a non-2xx provider response into the error taxonomy.
// Auth and client errors are permanent; rate limits, timeouts, and server
// errors are transient. A 429 carries the Retry-After hint when present.
func mapHTTPError(statusCode int, body []byte, headers http.Header) error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(statusCode)
	}
	baseErr := fmt.Errorf("HTTP %d: %s", statusCode, message)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &hearthErrors.PermanentError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    "Authentication with the model provider failed. Check the API key configuration.",
		}

	case statusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if headers != nil {
			retryAfter = parseRetryAfter(headers.Get("Retry-After"))
		}
		return &hearthErrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			RetryAfter: retryAfter,
			Message:    "The model provider is rate limiting requests. Retrying with backoff.",
		}

	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return &hearthErrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    "The model provider timed out. Retrying.",
		}

	case statusCode >= 500:
		return &hearthErrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    "The model provider returned a server error. Retrying.",
		}

	case statusCode >= 400:
		return &hearthErrors.PermanentError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("The model provider rejected the request (HTTP %d).", statusCode),
		}

	default:
		return &hearthErrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("Unexpected provider response (HTTP %d). Retrying.", statusCode),
		}
	}
}

// parseRetryAfter interprets a Retry-After header value, either integer
// seconds or an HTTP date. Returns 0 when absent or unusable.
func parseRetryAfter(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return seconds
	}
	if at, err := http.ParseTime(value); err == nil {
		if delta := time.Until(at); delta > 0 {
			return int(delta.Seconds())
		}
	}
	return 0
}

const maxResponseBodySize = 10 << 20

func readResponseBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBodySize))
}

func extractRequestID(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata["request_id"].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func extractSessionID(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata["session_id"].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
