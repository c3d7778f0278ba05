package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/diagnosis/photo-challenges/pkg/logger"
)

type ServiceProxy struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewServiceProxy(name, baseURL string) *ServiceProxy {
	return &ServiceProxy{
		name:    name,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *ServiceProxy) Name() string { return p.name }

// ProxyRequest forwards one request to the upstream service. pathAndQuery is
// appended to the base URL as is.
func (p *ServiceProxy) ProxyRequest(ctx context.Context, method, pathAndQuery string, body []byte, headers http.Header) (*http.Response, error) {
	url := p.baseURL + pathAndQuery

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		req.Header.Set("X-Request-ID", requestID)
	}
	req.Header.Set("X-Gateway-Forwarded", "true")
	req.Header.Set("X-Gateway-Service", "photo-challenges-gateway")

	logger.DebugContext(ctx, "Proxying request",
		"service", p.name,
		"method", method,
		"url", url,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", p.name, err)
	}
	return resp, nil
}
