package gobayeux_test

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sigmavirus24/gobayeux/v3"
)

type roundTripFn func(*http.Request) (*http.Response, error)

func (fn roundTripFn) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}

func ExampleWithSlogLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}

			return a
		},
	}))

	handler := roundTripFn(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     http.StatusText(http.StatusOK),
		}, nil
	})

	client, err := gobayeux.NewClient("http://127.0.0.1:9876",
		gobayeux.WithSlogLogger(logger),
		gobayeux.WithHTTPTransport(handler),
		gobayeux.WithRetryFilter(func(error) bool { return false }),
	)
	if err != nil {
		panic(err)
	}

	err = client.HandshakeAndWait(5 * time.Second)
	fmt.Println(err)
	// Output:
	// level=WARN msg="giving up on the session" at=terminate error="protocol error: unable to decode response (EOF)"
	// protocol error: unable to decode response (EOF)
}
