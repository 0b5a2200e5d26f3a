package tapkey

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/lockexport/internal/logging"
)

// RequestObserver receives one observation per remote HTTP exchange.
// metrics.Recorder implements it.
type RequestObserver interface {
	ObserveRemoteRequest(status int, duration time.Duration)
}

// instrumentedTransport times every round trip and logs it at debug level.
// Status 0 is reported when no response was received.
type instrumentedTransport struct {
	base     http.RoundTripper
	observer RequestObserver
}

func newInstrumentedTransport(base http.RoundTripper, observer RequestObserver) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &instrumentedTransport{base: base, observer: observer}
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
	}
	if t.observer != nil {
		t.observer.ObserveRemoteRequest(status, duration)
	}

	logger := logging.FromContext(req.Context())
	if err != nil {
		logger.Warn("remote request failed",
			"method", req.Method,
			"host", req.URL.Host,
			"path", req.URL.Path,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	} else {
		logger.Debug("remote request",
			"method", req.Method,
			"host", req.URL.Host,
			"path", req.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
		)
	}
	return resp, err
}
