package measurement

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/l4slab/slicecall/pkg/logger"
)

// LogSink writes every item to the process log and optionally appends them as
// JSON lines to a file.
type LogSink struct {
	logger logger.Logger

	lock        sync.Mutex
	file        *os.File
	encoder     *json.Encoder
	lastSummary *Summary
	closed      bool
}

func NewLogSink(l logger.Logger) *LogSink {
	return &LogSink{logger: l.WithName("measurement")}
}

func (s *LogSink) Name() string {
	return "log"
}

// Configure opens path for appending. An empty path logs only.
func (s *LogSink) Configure(path string, _ Credentials) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file, s.encoder = nil, nil
	}
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	s.encoder = json.NewEncoder(f)
	return nil
}

func (s *LogSink) Emit(_ context.Context, batch []Item) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrSinkClosed
	}

	for i := range batch {
		item := &batch[i]
		s.logger.Debugw("measurement",
			"timeStampMs", item.TimestampMs,
			"rttMs", item.RTTMs,
			"loadkbits", item.LoadKbits,
			"ecnCePercent", item.EcnCePercent,
			"packetLossCount", item.PacketLossCount,
			"cellId", item.CellID,
		)
		if s.encoder != nil {
			if err := s.encoder.Encode(item); err != nil {
				return err
			}
		}
	}
	s.logger.Infow("measurement batch", "items", len(batch))
	return nil
}

func (s *LogSink) EmitSummary(_ context.Context, summary Summary) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrSinkClosed
	}

	s.lastSummary = &summary
	s.logger.Infow("call summary",
		"count", summary.Count,
		"hasCe", summary.HasCeMarks,
		"ceMarkedItems", summary.CeMarkedItems,
		"totalLoss", summary.TotalLoss,
		"avgRttMs", summary.MeanRTTMs,
		"p95RttMs", summary.P95RTTMs,
		"p99RttMs", summary.P99RTTMs,
		"p9995RttMs", summary.P9995RTTMs,
	)
	return nil
}

func (s *LogSink) LastSummary() (Summary, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.lastSummary == nil {
		return Summary{}, false
	}
	return *s.lastSummary, true
}

func (s *LogSink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
