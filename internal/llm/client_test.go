package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeProvider is a scriptable backend for client tests
type fakeProvider struct {
	name  string
	calls int
	// errs are returned in order; past the end the provider succeeds
	errs []error
	text string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return "", f.errs[f.calls-1]
	}
	return f.text, nil
}

func newTestClient(cfg ClientConfig, providers ...Provider) *Client {
	c := NewClient(cfg, providers...)
	c.sleep = func(time.Duration) {}
	return c
}

func TestChat_Success(t *testing.T) {
	p := &fakeProvider{name: "anthropic", text: "hello"}
	c := newTestClient(ClientConfig{DefaultProvider: "anthropic"}, p)

	got, err := c.Chat(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("got %q, want hello", got)
	}
	if p.calls != 1 {
		t.Errorf("got %d calls, want 1", p.calls)
	}
}

func TestChat_UnknownProvider(t *testing.T) {
	c := newTestClient(ClientConfig{DefaultProvider: "anthropic"})

	_, err := c.Chat(context.Background(), "hi", Options{Provider: "mystery"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("got %v, want ErrUnknownProvider", err)
	}
}

func TestChat_RetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{
		name: "anthropic",
		errs: []error{
			&APIError{Provider: "anthropic", StatusCode: 503, Message: "overloaded"},
			&APIError{Provider: "anthropic", StatusCode: 500, Message: "oops"},
		},
		text: "recovered",
	}
	c := newTestClient(ClientConfig{DefaultProvider: "anthropic", MaxRetries: 2}, p)

	got, err := c.Chat(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "recovered" {
		t.Errorf("got %q, want recovered", got)
	}
	if p.calls != 3 {
		t.Errorf("got %d calls, want 3", p.calls)
	}
}

func TestChat_NoRetryOnPermanentError(t *testing.T) {
	p := &fakeProvider{
		name: "anthropic",
		errs: []error{
			&APIError{Provider: "anthropic", StatusCode: 401, Message: "invalid credentials"},
		},
	}
	c := newTestClient(ClientConfig{DefaultProvider: "anthropic", MaxRetries: 2}, p)

	_, err := c.Chat(context.Background(), "hi", Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("got %d calls, want 1 (no retry on 4xx)", p.calls)
	}
}

func TestChat_RateLimitFailsFastAndFallsBack(t *testing.T) {
	primary := &fakeProvider{
		name: "anthropic",
		errs: []error{
			&APIError{Provider: "anthropic", StatusCode: 429, Message: "slow down"},
		},
	}
	fallback := &fakeProvider{name: "openai", text: "from fallback"}
	c := newTestClient(ClientConfig{
		DefaultProvider:  "anthropic",
		FallbackProvider: "openai",
		MaxRetries:       3,
	}, primary, fallback)

	got, err := c.Chat(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "from fallback" {
		t.Errorf("got %q, want from fallback", got)
	}
	if primary.calls != 1 {
		t.Errorf("primary got %d calls, want 1 (no retry on rate limit)", primary.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback got %d calls, want 1", fallback.calls)
	}
}

func TestChat_RateLimitNoFallbackConfigured(t *testing.T) {
	p := &fakeProvider{
		name: "anthropic",
		errs: []error{
			&APIError{Provider: "anthropic", StatusCode: 429, Message: "slow down"},
		},
	}
	c := newTestClient(ClientConfig{DefaultProvider: "anthropic"}, p)

	_, err := c.Chat(context.Background(), "hi", Options{})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("got %v, want ErrRateLimited", err)
	}
}

func TestChat_FallbackHasOwnRetryBudget(t *testing.T) {
	primary := &fakeProvider{
		name: "anthropic",
		errs: []error{&APIError{Provider: "anthropic", StatusCode: 429}},
	}
	fallback := &fakeProvider{
		name: "openai",
		errs: []error{&APIError{Provider: "openai", StatusCode: 500}},
		text: "eventually",
	}
	c := newTestClient(ClientConfig{
		DefaultProvider:  "anthropic",
		FallbackProvider: "openai",
		MaxRetries:       2,
	}, primary, fallback)

	got, err := c.Chat(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "eventually" {
		t.Errorf("got %q, want eventually", got)
	}
	if fallback.calls != 2 {
		t.Errorf("fallback got %d calls, want 2", fallback.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &APIError{StatusCode: 503}, true},
		{"rate limit", &APIError{StatusCode: 429}, true},
		{"bad request", &APIError{StatusCode: 400}, false},
		{"unauthorized", &APIError{StatusCode: 401}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unknown provider", ErrUnknownProvider, false},
		{"generic", errors.New("weird"), false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsRateLimit(t *testing.T) {
	if !IsRateLimit(&APIError{StatusCode: 429}) {
		t.Error("429 not classified as rate limit")
	}
	if IsRateLimit(&APIError{StatusCode: 500}) {
		t.Error("500 classified as rate limit")
	}
	if !IsRateLimit(ErrRateLimited) {
		t.Error("ErrRateLimited not classified as rate limit")
	}
}

func TestAnthropicProvider_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("got path %s, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("api key header missing")
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"generated"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{
		Model:   "claude-sonnet-4-20250514",
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	got, err := p.Chat(context.Background(), ChatRequest{Prompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "generated" {
		t.Errorf("got %q, want generated", got)
	}
}

func TestAnthropicProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Chat(context.Background(), ChatRequest{Prompt: "hi"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("got status=%d, want 429", apiErr.StatusCode)
	}
	if apiErr.Message != "slow down" {
		t.Errorf("got message=%q, want slow down", apiErr.Message)
	}
}

func TestOpenAIProvider_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("got path %s, want /v1/chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("bearer token missing")
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"answer"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{Model: "gpt-4o", APIKey: "test-key", BaseURL: srv.URL})
	got, err := p.Chat(context.Background(), ChatRequest{Prompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "answer" {
		t.Errorf("got %q, want answer", got)
	}
}
