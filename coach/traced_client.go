package coach

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// Timing records where the time of one service call went. Uploads are the
// slow path of a session, so these end up in the diagnostic log per submit.
type Timing struct {
	DNS        time.Duration
	Connect    time.Duration
	TLS        time.Duration
	Upload     time.Duration
	TTFB       time.Duration
	Total      time.Duration
	ConnReused bool
	TLSProto   string
	SentBytes  int64
}

// Setup is the part of the call spent before the request was written.
func (t *Timing) Setup() time.Duration { return t.DNS + t.Connect + t.TLS }

// tracedResponse is a fully read response with its timing.
type tracedResponse struct {
	Body       []byte
	StatusCode int
	Timing     *Timing
}

type tracedClient struct {
	client *http.Client
}

func newTracedClient(timeout time.Duration) *tracedClient {
	return &tracedClient{client: &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}}
}

// trace wires an httptrace hook set that fills t.
func (t *Timing) trace() *httptrace.ClientTrace {
	var dnsAt, dialAt, tlsAt, wroteHeadersAt time.Time
	return &httptrace.ClientTrace{
		GotConn:  func(info httptrace.GotConnInfo) { t.ConnReused = info.Reused },
		DNSStart: func(httptrace.DNSStartInfo) { dnsAt = time.Now() },
		DNSDone:  func(httptrace.DNSDoneInfo) { t.DNS = time.Since(dnsAt) },
		ConnectStart: func(_, _ string) {
			dialAt = time.Now()
		},
		ConnectDone:       func(_, _ string, _ error) { t.Connect = time.Since(dialAt) },
		TLSHandshakeStart: func() { tlsAt = time.Now() },
		TLSHandshakeDone: func(cs tls.ConnectionState, _ error) {
			t.TLS = time.Since(tlsAt)
			t.TLSProto = cs.NegotiatedProtocol
		},
		WroteHeaders: func() { wroteHeadersAt = time.Now() },
		WroteRequest: func(httptrace.WroteRequestInfo) {
			t.Upload = time.Since(wroteHeadersAt)
			wroteHeadersAt = time.Now()
		},
		GotFirstResponseByte: func() { t.TTFB = time.Since(wroteHeadersAt) },
	}
}

func (c *tracedClient) Do(req *http.Request) (*tracedResponse, error) {
	t := &Timing{SentBytes: max(req.ContentLength, 0)}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), t.trace()))

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	t.Total = time.Since(start)
	return &tracedResponse{Body: body, StatusCode: resp.StatusCode, Timing: t}, nil
}

// Warm sends a HEAD to url and reports the round trip. Any HTTP status
// counts as reachable.
func (c *tracedClient) Warm(ctx context.Context, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return time.Since(start), nil
}
