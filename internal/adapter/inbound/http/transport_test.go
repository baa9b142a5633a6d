package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestHTTPTransport_StartServeShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	transport, _ := newTestTransport(t)
	WithAddr("127.0.0.1:0")(transport)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- transport.Start(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer addrCancel()
	addr, err := transport.Addr(addrCtx)
	if err != nil {
		t.Fatalf("Addr() error: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	base := "http://" + addr

	resp, err := client.Post(base+routeEvaluate, "application/json",
		strings.NewReader(`{"command":"triage-nda","model_output":{"classification":"GREEN"}}`))
	if err != nil {
		t.Fatalf("POST evaluate: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"state":"HOLD"`) {
		t.Errorf("evaluate = %d %s", resp.StatusCode, body)
	}

	resp, err = client.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	resp, err = client.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	metrics, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	for _, want := range []string{
		`judgment_evaluations_total{matched="true",state="HOLD"} 1`,
		`judgment_http_requests_total{route="/v1/evaluate",status="ok"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(metrics), want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned %v, want nil on shutdown", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
	client.CloseIdleConnections()
}

func TestHTTPTransport_ListenError(t *testing.T) {
	t.Parallel()
	transport, _ := newTestTransport(t)
	WithAddr("256.0.0.1:bad")(transport)

	if err := transport.Start(context.Background()); err == nil {
		t.Error("Start() expected listen error")
	}
}
