package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of an error response is quoted in errors.
const maxErrorBody = 512

// NewRequest builds a request with an optional bearer token.
func NewRequest(ctx context.Context, method, url, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrInvalidConfig, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Do sends req and checks the status. Transport failures and non-2xx
// responses wrap ErrConnectivity. The caller closes the body on success.
func Do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrConnectivity, req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: status %d: %s", ErrConnectivity, req.Method, req.URL.Path, resp.StatusCode, body)
	}
	return resp, nil
}

// GetJSON fetches url and decodes the JSON response into out. Decode
// failures wrap ErrProtocol.
func GetJSON(ctx context.Context, client *http.Client, url, token string, out any) error {
	req, err := NewRequest(ctx, http.MethodGet, url, token)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := Do(client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: decoding %s: %w", ErrProtocol, req.URL.Path, err)
	}
	return nil
}
