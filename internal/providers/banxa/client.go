package banxa

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ramp-quote-go/internal/httpclient"
	"ramp-quote-go/internal/providers"
)

// sign returns the Authorization value for one request. The signed data is
// METHOD, path with query, and nonce joined by newlines, plus the body on POST.
func sign(apiKey, secret, method, pathAndQuery, nonce string, body []byte) string {
	data := method + "\n" + pathAndQuery + "\n" + nonce
	if method == http.MethodPost {
		data += "\n" + string(body)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return "Bearer " + apiKey + ":" + hex.EncodeToString(mac.Sum(nil)) + ":" + nonce
}

func signedPath(path string, query url.Values) string {
	path = strings.TrimLeft(path, "/")
	if len(query) > 0 {
		return path + "?" + query.Encode()
	}
	return path
}

// call sends a signed request and decodes the response into out.
func (p *Provider) call(ctx context.Context, method, path string, query url.Values, body any, operation string, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("unable to encode %s request: %w", operation, err)
		}
	}

	nonce := strconv.FormatInt(p.now().UnixMilli(), 10)
	header := http.Header{}
	header.Set("Authorization", sign(p.apiKey, p.secret, method, signedPath(path, query), nonce, payload))

	data, err := p.client.Do(ctx, httpclient.Request{
		Method:    method,
		Path:      path,
		Query:     query,
		Header:    header,
		Body:      payload,
		Operation: operation,
	})
	if err != nil {
		var transportErr *providers.TransportError
		if errors.As(err, &transportErr) && len(data) > 0 {
			var apiErr errorResponse
			if json.Unmarshal(data, &apiErr) == nil && apiErr.Errors.Title != "" {
				return fmt.Errorf("banxa %s: %s: %w", operation, apiErr.Errors.Title, err)
			}
		}
		return err
	}
	if out == nil {
		return nil
	}
	return providers.DecodeJSON(ProviderID, operation, data, out)
}
