package gobayeux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

type roundTripFn func(*http.Request) (*http.Response, error)

func (fn roundTripFn) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

func jsonResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func sendAndWait(t *testing.T, rt http.RoundTripper, ms []Message) ([]Message, error) {
	t.Helper()
	transport, err := NewLongPollingTransport("https://example.com/cometd", nil, rt, nil)
	if err != nil {
		t.Fatalf("unexpected error creating transport: %q", err)
	}
	ex := NewExchange(context.Background(), ms, nil)
	transport.Send(ex)
	select {
	case <-ex.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exchange was never resolved")
	}
	return ex.Result()
}

func TestLongPollingTransportSend(t *testing.T) {
	var sent []Message
	rt := roundTripFn(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Errorf("expected a POST, got %s", req.Method)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected a JSON content type, got %q", ct)
		}
		if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
			t.Errorf("unable to decode request: %q", err)
		}
		return jsonResponse(http.StatusOK, `[{"channel":"/meta/connect","successful":true,"id":"1"}]`), nil
	})

	response, err := sendAndWait(t, rt, []Message{{Channel: MetaConnect, ID: "1", ClientID: "abc"}})
	if err != nil {
		t.Fatalf("unexpected error %q", err)
	}
	if len(sent) != 1 || sent[0].ClientID != "abc" {
		t.Errorf("expected the batch to be posted, server saw %+v", sent)
	}
	if len(response) != 1 || !response[0].Successful {
		t.Errorf("unexpected response %+v", response)
	}
}

func TestLongPollingTransportName(t *testing.T) {
	transport, err := NewLongPollingTransport("https://example.com/cometd", nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error creating transport: %q", err)
	}
	if transport.Name() != ConnectionTypeLongPolling {
		t.Errorf("expected %s, got %s", ConnectionTypeLongPolling, transport.Name())
	}
}

func TestLongPollingTransportFailures(t *testing.T) {
	testCases := []struct {
		name          string
		roundTrip     roundTripFn
		wantProtocol  bool
		wantTransport bool
		wantKind      FailureKind
	}{
		{
			name: "unexpected status code",
			roundTrip: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusServiceUnavailable, "unavailable"), nil
			},
			wantProtocol: true,
		},
		{
			name: "undecodable body",
			roundTrip: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"channel":`), nil
			},
			wantProtocol: true,
		},
		{
			name: "server unavailable",
			roundTrip: func(*http.Request) (*http.Response, error) {
				return nil, fmt.Errorf("down (%w)", ErrServerUnavailable)
			},
			wantTransport: true,
			wantKind:      FailureConnect,
		},
		{
			name: "connection refused",
			roundTrip: func(*http.Request) (*http.Response, error) {
				return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
			},
			wantTransport: true,
			wantKind:      FailureConnect,
		},
		{
			name: "deadline exceeded",
			roundTrip: func(*http.Request) (*http.Response, error) {
				return nil, context.DeadlineExceeded
			},
			wantTransport: true,
			wantKind:      FailureExpired,
		},
		{
			name: "connection reset",
			roundTrip: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("connection reset by peer")
			},
			wantTransport: true,
			wantKind:      FailureException,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			_, err := sendAndWait(t, tc.roundTrip, []Message{{Channel: MetaConnect}})
			var pe *ProtocolError
			var te *TransportError
			switch {
			case tc.wantProtocol && !errors.As(err, &pe):
				t.Fatalf("expected a ProtocolError, got %v", err)
			case tc.wantTransport && !errors.As(err, &te):
				t.Fatalf("expected a TransportError, got %v", err)
			case tc.wantTransport && te.Kind != tc.wantKind:
				t.Fatalf("expected a %s failure, got %s", tc.wantKind, te.Kind)
			}
		})
	}
}

func TestLongPollingTransportBadResponseBody(t *testing.T) {
	rt := roundTripFn(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":"Invalid request"}`), nil
	})
	_, err := sendAndWait(t, rt, []Message{{Channel: MetaHandshake}})

	var bre BadResponseError
	if !errors.As(err, &bre) {
		t.Fatalf("expected a BadResponseError, got %v", err)
	}
	if bre.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", bre.StatusCode)
	}
	if string(bre.Body) != `{"error":"Invalid request"}` {
		t.Errorf("expected the body to be kept, got %q", bre.Body)
	}
}

func TestLongPollingTransportCanceled(t *testing.T) {
	rt := roundTripFn(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	transport, err := NewLongPollingTransport("https://example.com/cometd", nil, rt, nil)
	if err != nil {
		t.Fatalf("unexpected error creating transport: %q", err)
	}
	ex := NewExchange(context.Background(), []Message{{Channel: MetaConnect}}, nil)
	transport.Send(ex)
	ex.Cancel()

	if _, err := ex.Result(); !errors.Is(err, ErrExchangeCanceled) {
		t.Fatalf("expected ErrExchangeCanceled, got %v", err)
	}
}

func TestExchangeTimeout(t *testing.T) {
	advice := Advice{Timeout: 30000}
	if got := exchangeTimeout(advice, 10*time.Second, MetaConnect); got != 40*time.Second {
		t.Errorf("expected connects to wait timeout plus network delay, got %s", got)
	}
	if got := exchangeTimeout(advice, 10*time.Second, MetaSubscribe); got != 10*time.Second {
		t.Errorf("expected other requests to wait the network delay, got %s", got)
	}
	if got := exchangeTimeout(Advice{}, 10*time.Second, MetaConnect); got != 10*time.Second {
		t.Errorf("expected a zero timeout connect to wait the network delay, got %s", got)
	}
}
