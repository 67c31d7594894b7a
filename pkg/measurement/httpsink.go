package measurement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/telemetry/prometheus"
)

type HTTPSinkParams struct {
	Timeout time.Duration
	Client  *http.Client
	Logger  logger.Logger
}

// HTTPSink posts batches as a JSON array with basic auth. Posting happens on a
// single worker so the sampler never waits for the network and batches arrive
// in order.
type HTTPSink struct {
	params HTTPSinkParams
	pool   *workerpool.WorkerPool

	lock   sync.RWMutex
	url    string
	creds  Credentials
	closed bool
}

func NewHTTPSink(params HTTPSinkParams) *HTTPSink {
	if params.Timeout <= 0 {
		params.Timeout = 10 * time.Second
	}
	if params.Client == nil {
		params.Client = &http.Client{Timeout: params.Timeout}
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &HTTPSink{
		params: params,
		pool:   workerpool.New(1),
	}
}

func (s *HTTPSink) Name() string {
	return "http"
}

func (s *HTTPSink) Configure(url string, creds Credentials) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.url = url
	s.creds = creds
	return nil
}

func (s *HTTPSink) Emit(_ context.Context, batch []Item) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	items := len(batch)

	// held until the task is queued so Close cannot stop the pool in between
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	url, creds := s.url, s.creds
	s.pool.Submit(func() {
		err := s.post(url, creds, payload)
		prometheus.RecordSinkFlush(s.Name(), items, err)
		if err != nil {
			s.params.Logger.Warnw("could not post measurements", err, "items", items, "url", url)
			return
		}
		s.params.Logger.Debugw("posted measurements", "items", items)
	})
	return nil
}

// EmitSummary only logs, the ingest endpoint has no summary resource.
func (s *HTTPSink) EmitSummary(_ context.Context, summary Summary) error {
	s.params.Logger.Infow("call summary",
		"count", summary.Count,
		"hasCe", summary.HasCeMarks,
		"totalLoss", summary.TotalLoss,
		"avgRttMs", summary.MeanRTTMs,
		"p95RttMs", summary.P95RTTMs,
		"p99RttMs", summary.P99RTTMs,
		"p9995RttMs", summary.P9995RTTMs,
	)
	return nil
}

// Close waits for queued batches to be posted.
func (s *HTTPSink) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	s.lock.Unlock()

	s.pool.StopWait()
	return nil
}

func (s *HTTPSink) post(url string, creds Credentials, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.params.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if creds.Username != "" || creds.Password != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := s.params.Client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}
