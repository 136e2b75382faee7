package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/and161185/bookbazaar/internal/errs"
)

const (
	maxBody    = 4 << 20
	maxMessage = 200 // runes
)

// DecodeJSON decodes a 2xx response body into v and closes the body.
// A non-2xx response becomes a *errs.APIError.
func DecodeJSON(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()
	if !ok(resp) {
		return responseError(resp)
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Expect checks that the response is 2xx, discards the body and closes it.
func Expect(resp *http.Response) error {
	return DecodeJSON(resp, nil)
}

// ResponseError converts a non-2xx response into a *errs.APIError and closes the body.
func ResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	return responseError(resp)
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	return &errs.APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
}

// errorMessage reads {"error": ...}, {"message": ...}, a bare JSON string or plain text.
func errorMessage(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Error != "" {
			return obj.Error
		}
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	msg := strings.TrimSpace(string(raw))
	if r := []rune(msg); len(r) > maxMessage {
		msg = string(r[:maxMessage])
	}
	return msg
}

// JSONBody encodes v for Request.Body.
func JSONBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return b, nil
}
