package measurement

import (
	"context"
	"errors"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
)

var (
	ErrSinkClosed       = errors.New("measurement sink closed")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrInvalidS3URI     = errors.New("invalid S3 URI")
)

type Credentials struct {
	Username string
	Password string
}

// Sink receives finished batches and the end-of-call summary. Only one sink is
// active at a time.
type Sink interface {
	Name() string
	Configure(endpoint string, creds Credentials) error
	Emit(ctx context.Context, batch []Item) error
	EmitSummary(ctx context.Context, summary Summary) error
	Close() error
}

// NewSink builds and configures the sink selected in conf. It returns nil when
// measurement logging is disabled.
func NewSink(ctx context.Context, conf config.MeasurementConfig, l logger.Logger) (Sink, error) {
	if !conf.LoggingEnabled() {
		return nil, nil
	}

	var (
		sink     Sink
		endpoint string
		creds    Credentials
	)
	switch conf.Sink {
	case config.SinkLog:
		sink = NewLogSink(l)
		endpoint = conf.Log.File
	case config.SinkHTTP:
		sink = NewHTTPSink(HTTPSinkParams{Timeout: conf.HTTP.Timeout, Logger: l})
		endpoint = conf.HTTP.URL
		creds = Credentials{Username: conf.HTTP.Username, Password: conf.HTTP.Password}
	case config.SinkS3:
		sink = NewS3Sink(S3SinkParams{Region: conf.S3.Region, SessionName: conf.SessionName, Logger: l})
		endpoint = conf.S3.URI
		creds = Credentials{Username: conf.S3.AccessKey, Password: conf.S3.Secret}
	default:
		return nil, config.ErrUnknownSink
	}

	if s3Sink, ok := sink.(*S3Sink); ok {
		if err := s3Sink.connect(ctx); err != nil {
			return nil, err
		}
	}
	if err := sink.Configure(endpoint, creds); err != nil {
		_ = sink.Close()
		return nil, err
	}
	return sink, nil
}
