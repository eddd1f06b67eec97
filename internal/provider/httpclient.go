package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"brentcast/internal/ratelimit"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// getJSON performs one rate-limited GET and decodes the body into dst
func getJSON(ctx context.Context, client *http.Client, limiter *ratelimit.Limiter, name, url string, dst any) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: name, Err: fmt.Errorf("%w: %w", ErrUpstreamData, err), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		limiter.SignalRateLimited(retryAfter(resp.Header.Get("Retry-After")))
		return &ProviderError{Provider: name, Err: fmt.Errorf("%w: rate limited", ErrUpstreamData), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return &ProviderError{
			Provider:  name,
			Err:       fmt.Errorf("%w: status %d", ErrUpstreamData, resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	limiter.ResetBackoff()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return upstreamf(name, "decoding response: %v", err)
	}
	return nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
