package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMalformedResponse = errors.New("malformed response")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
)

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api request failed: status code %d, detail %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api request failed: status code %d", e.StatusCode)
}

type apiErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

func handleAPIError(res *http.Response, body []byte) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: res.StatusCode}
	var payload apiErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		apiErr.Detail = detailText(payload.Detail)
	} else {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	return apiErr
}

// detailText flattens FastAPI style details, which are either a string or
// a list of validation errors.
func detailText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			msgs = append(msgs, it.Msg)
		}
		return strings.Join(msgs, "; ")
	}
	return string(raw)
}
