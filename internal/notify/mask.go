package notify

import (
	"errors"
	"fmt"
	"strings"
)

// MaskSecret replaces all but the last visible characters with '*'.
// Values no longer than visible are masked entirely.
func MaskSecret(value string, visible int) string {
	if value == "" {
		return ""
	}
	if visible < 0 {
		visible = 0
	}
	runes := []rune(value)
	if len(runes) <= visible {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visible) + string(runes[len(runes)-visible:])
}

// HTTPStatusError reports a non-2xx Bot API response.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// describeError renders err for logs with the token masked out.
func describeError(err error, token string) string {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	// Transport errors embed the request URL, which carries the token.
	text := err.Error()
	if token != "" {
		text = strings.ReplaceAll(text, token, MaskSecret(token, 4))
	}
	return text
}
