// Package keyproxy holds the request plumbing shared by the provider shapes:
// JSON request construction with server-side credential injection, key
// redaction for logs, and reply-path extraction.
package keyproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pysugar/roleplay-nexus/internal/util"
	"github.com/tidwall/gjson"
)

// QueryKeyParam is the query parameter used by key-in-URL providers.
const QueryKeyParam = "key"

// NewJSONRequest marshals payload and builds a POST request to target with
// the given headers. Content-Type defaults to application/json.
func NewJSONRequest(ctx context.Context, target string, payload any, headers map[string]string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if strings.TrimSpace(req.Header.Get("Content-Type")) == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// WithQueryKey returns target with any existing key parameter replaced by apiKey.
// Other query parameters are preserved.
func WithQueryKey(target, apiKey string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target URL: %w", err)
	}
	query := CloneValues(parsed.Query())
	query.Del(QueryKeyParam)
	query.Set(QueryKeyParam, strings.TrimSpace(apiKey))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func CloneValues(values url.Values) url.Values {
	cloned := make(url.Values, len(values))
	for k, arr := range values {
		cp := make([]string, len(arr))
		copy(cp, arr)
		cloned[k] = cp
	}
	return cloned
}

// RedactURL renders u with the key query parameter masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	cp := *u
	query := cp.Query()
	if v := query.Get(QueryKeyParam); v != "" {
		query.Set(QueryKeyParam, util.MaskSecret(v))
		cp.RawQuery = query.Encode()
	}
	return cp.String()
}

// StringAt returns the string found at a gjson path such as
// "choices.0.message.content". Missing, null, non-string and empty values
// report false.
func StringAt(body []byte, path string) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	result := gjson.GetBytes(body, path)
	if !result.Exists() || result.Type != gjson.String {
		return "", false
	}
	if result.Str == "" {
		return "", false
	}
	return result.Str, true
}
