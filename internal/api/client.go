// Package api is the HTTP client for the Local Service Finder backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"servifind/internal/models"
)

// Request describes one API call. Token is set only by the session manager;
// unauthenticated endpoints leave it empty.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Token  string

	// GatewayScope classifies non-401 4xx responses as payment-gateway
	// rejections instead of validation errors. Set only on verify-payment.
	GatewayScope bool
}

// Doer executes API requests. The session manager satisfies it for
// authenticated calls; *Client satisfies it for unauthenticated ones.
type Doer interface {
	Do(ctx context.Context, req Request, out any) error
}

// Client is a thin JSON client over the marketplace REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// UseRedisCache configures optional Redis caching for provider GETs.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit throttles outgoing requests to rps with the given burst.
func (c *Client) UseRateLimit(rps float64, burst int) {
	if rps > 0 && burst > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Do executes a request and decodes the JSON response into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindTransport, Message: err.Error()}
		}
	}

	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body *bytes.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.classify(req, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindTransport, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func (c *Client) classify(req Request, resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	kind := KindTransport
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = KindAuthorization
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		kind = KindValidation
		if req.GatewayScope {
			kind = KindPaymentGateway
		}
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Str("kind", kind.String()).
		Msg("request rejected")

	return &Error{Kind: kind, Status: resp.StatusCode, Message: payload.Message}
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         models.User `json:"user"`
}

// RefreshResponse is returned by the refresh endpoint.
type RefreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges email/password for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/auth/login",
		Body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns its first token pair.
func (c *Client) Register(ctx context.Context, name, email, password, role string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/auth/register",
		Body:   map[string]string{"name": name, "email": email, "password": password, "role": role},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a new token pair. This is the only
// call that carries the refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	var resp RefreshResponse
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/auth/refresh-token",
		Body:   map[string]string{"refreshToken": refreshToken},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword requests a password-reset OTP for the account email.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	return c.message(ctx, "/api/auth/forgot-password", map[string]string{"email": email})
}

// VerifyOTP checks a password-reset OTP.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	return c.message(ctx, "/api/auth/verify-otp", map[string]string{"email": email, "otp": otp})
}

// ResetPassword sets a new password using a verified OTP.
func (c *Client) ResetPassword(ctx context.Context, email, otp, newPassword string) (string, error) {
	return c.message(ctx, "/api/auth/reset-password", map[string]string{
		"email": email, "otp": otp, "newPassword": newPassword,
	})
}

func (c *Client) message(ctx context.Context, path string, body any) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ListProviders searches providers by free-text query and location. Both
// filters are optional. Results are cached when Redis is configured.
func (c *Client) ListProviders(ctx context.Context, query, location string) ([]models.Provider, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	if location != "" {
		q.Set("location", location)
	}

	cacheKey := fmt.Sprintf("providers:%s:%s", query, location)
	var providers []models.Provider
	if c.readCache(ctx, cacheKey, &providers) {
		return providers, nil
	}

	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/api/providers", Query: q}, &providers)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, providers)
	return providers, nil
}

// GetProvider fetches one provider including services, rating and reviews.
func (c *Client) GetProvider(ctx context.Context, providerID string) (*models.Provider, error) {
	cacheKey := "provider:" + providerID
	var provider models.Provider
	if c.readCache(ctx, cacheKey, &provider) {
		return &provider, nil
	}

	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/api/providers/" + url.PathEscape(providerID)}, &provider)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, provider)
	return &provider, nil
}

// ProviderReviews fetches the reviews left against a provider.
func (c *Client) ProviderReviews(ctx context.Context, providerID string) ([]models.Review, error) {
	var reviews []models.Review
	err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/reviews/provider/" + url.PathEscape(providerID),
	}, &reviews)
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

// InvalidateProviders drops cached provider reads. Best effort; called after
// writes that change provider-visible state (completed payment, new review).
func (c *Client) InvalidateProviders(ctx context.Context, providerID string) {
	if c.redis == nil {
		return
	}
	keys := []string{"provider:" + providerID}
	iter := c.redis.Scan(ctx, 0, "providers:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	_ = c.redis.Del(ctx, keys...).Err()
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}
