package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"bazaar/internal/model"
	"bazaar/pkg/breaker"
	"bazaar/pkg/queue"
	"bazaar/pkg/utils"
)

// Provider push delivery channel. Implementations must be interchangeable:
// the dispatch engine never knows which one it holds.
type Provider interface {
	// Register announces a device token to the provider
	Register(ctx context.Context, token, platform string) error

	// Send delivers one notification to one token
	Send(ctx context.Context, token, title, body string) error

	// SendBatch delivers to many tokens, best-effort. The returned slice is
	// index-aligned with tokens; a nil entry means that send succeeded.
	SendBatch(ctx context.Context, tokens []string, title, body string) []error
}

// HTTPProvider direct signed-request provider channel
type HTTPProvider struct {
	url    string
	key    string
	client *http.Client
}

// NewHTTPProvider creates an HTTP provider signing requests with key
func NewHTTPProvider(url, key string) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		key:    key,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type pushRequest struct {
	Token     string `json:"token"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Register announces a device token
func (p *HTTPProvider) Register(ctx context.Context, token, platform string) error {
	payload, _ := json.Marshal(map[string]string{
		"token":    token,
		"platform": platform,
	})
	return p.post(ctx, p.url+"/register", payload)
}

// Send delivers one notification
func (p *HTTPProvider) Send(ctx context.Context, token, title, body string) error {
	payload, err := json.Marshal(pushRequest{
		Token:     token,
		Title:     title,
		Body:      body,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return p.post(ctx, p.url+"/send", payload)
}

// SendBatch delivers to many tokens concurrently
func (p *HTTPProvider) SendBatch(ctx context.Context, tokens []string, title, body string) []error {
	errs := make([]error, len(tokens))
	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			errs[i] = p.Send(ctx, token, title, body)
		}(i, token)
	}
	wg.Wait()
	return errs
}

func (p *HTTPProvider) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", utils.SignHMAC(p.key, string(payload)))

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}

// BridgeProvider native-bridge-backed provider channel: pushes are handed
// to the bridge process through the message queue
type BridgeProvider struct {
	mq    queue.MessageQueue
	topic string
}

// NewBridgeProvider creates a bridge provider publishing to topic
func NewBridgeProvider(mq queue.MessageQueue, topic string) *BridgeProvider {
	return &BridgeProvider{mq: mq, topic: topic}
}

// Register is a no-op: the bridge process owns provider registration
func (p *BridgeProvider) Register(ctx context.Context, token, platform string) error {
	return nil
}

// Send publishes one push to the bridge topic
func (p *BridgeProvider) Send(ctx context.Context, token, title, body string) error {
	msg, err := json.Marshal(model.BridgeMessage{
		Token:     token,
		Title:     title,
		Body:      body,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return p.mq.Publish(ctx, p.topic, msg)
}

// SendBatch publishes pushes for many tokens
func (p *BridgeProvider) SendBatch(ctx context.Context, tokens []string, title, body string) []error {
	errs := make([]error, len(tokens))
	for i, token := range tokens {
		errs[i] = p.Send(ctx, token, title, body)
	}
	return errs
}

// NoopProvider null-object provider used when push delivery is disabled
type NoopProvider struct{}

// Register does nothing
func (NoopProvider) Register(ctx context.Context, token, platform string) error { return nil }

// Send does nothing
func (NoopProvider) Send(ctx context.Context, token, title, body string) error { return nil }

// SendBatch does nothing
func (NoopProvider) SendBatch(ctx context.Context, tokens []string, title, body string) []error {
	return make([]error, len(tokens))
}

// BreakerProvider wraps a provider with a circuit breaker so a failing
// push backend sheds load instead of stalling every dispatch
type BreakerProvider struct {
	inner Provider
	cb    *breaker.CircuitBreaker
}

// NewBreakerProvider wraps a provider with a circuit breaker
func NewBreakerProvider(inner Provider, cb *breaker.CircuitBreaker) *BreakerProvider {
	return &BreakerProvider{inner: inner, cb: cb}
}

// Register passes through the breaker
func (p *BreakerProvider) Register(ctx context.Context, token, platform string) error {
	return p.cb.Execute(ctx, func() error {
		return p.inner.Register(ctx, token, platform)
	})
}

// Send passes through the breaker
func (p *BreakerProvider) Send(ctx context.Context, token, title, body string) error {
	return p.cb.Execute(ctx, func() error {
		return p.inner.Send(ctx, token, title, body)
	})
}

// SendBatch passes each send through the breaker
func (p *BreakerProvider) SendBatch(ctx context.Context, tokens []string, title, body string) []error {
	errs := make([]error, len(tokens))
	for i, token := range tokens {
		errs[i] = p.Send(ctx, token, title, body)
	}
	return errs
}
