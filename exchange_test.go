package gobayeux

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExchangeResolvesOnce(t *testing.T) {
	var completed int
	ex := NewExchange(context.Background(), []Message{{Channel: MetaConnect}}, func(*Exchange) {
		completed++
	})

	if !ex.Resolve([]Message{{Channel: MetaConnect, Successful: true}}, nil) {
		t.Fatal("expected the first Resolve to resolve the exchange")
	}
	if ex.Resolve(nil, errors.New("late failure")) {
		t.Fatal("expected a second Resolve to have no effect")
	}
	ex.Cancel()

	response, err := ex.Result()
	if err != nil {
		t.Fatalf("expected the first result to be kept, got error %q", err)
	}
	if len(response) != 1 || !response[0].Successful {
		t.Fatalf("expected the first response to be kept, got %+v", response)
	}
	if completed != 1 {
		t.Fatalf("expected onComplete to run once, ran %d times", completed)
	}
	if ex.Context().Err() == nil {
		t.Fatal("expected the exchange context to be canceled once resolved")
	}
}

func TestExchangeCancel(t *testing.T) {
	ex := NewExchange(context.Background(), []Message{{Channel: MetaHandshake}}, nil)
	ex.Cancel()

	select {
	case <-ex.Done():
	default:
		t.Fatal("expected Done to be closed after Cancel")
	}
	if _, err := ex.Result(); !errors.Is(err, ErrExchangeCanceled) {
		t.Fatalf("expected ErrExchangeCanceled, got %v", err)
	}
}

func TestExchangeFollowsParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ex := NewExchange(ctx, nil, nil)
	cancel()
	<-ex.Context().Done()
	select {
	case <-ex.Done():
		t.Fatal("expected the exchange to stay unresolved until the transport resolves it")
	default:
	}
}

func TestExchangeExpireAfter(t *testing.T) {
	expired := errors.New("expired")
	testCases := []struct {
		name    string
		resolve bool
		wantErr error
	}{
		{"expires when unresolved", false, expired},
		{"resolved before expiry", true, nil},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			ex := NewExchange(context.Background(), []Message{{Channel: MetaConnect}}, nil)
			if tc.resolve {
				ex.Resolve([]Message{{Channel: MetaConnect, Successful: true}}, nil)
			}
			ex.ExpireAfter(time.Millisecond, expired)

			select {
			case <-ex.Done():
			case <-time.After(5 * time.Second):
				t.Fatal("exchange never resolved")
			}
			time.Sleep(5 * time.Millisecond)
			if _, err := ex.Result(); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestExchangeExpireAfterRacesResolve(t *testing.T) {
	for i := 0; i < 100; i++ {
		ex := NewExchange(context.Background(), nil, nil)
		go ex.Resolve(nil, nil)
		ex.ExpireAfter(time.Nanosecond, ErrExchangeCanceled)
		<-ex.Done()
	}
}
