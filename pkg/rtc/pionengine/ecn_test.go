package pionengine

import (
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"
)

func feedbackReport() *rtcp.CCFeedbackReport {
	return &rtcp.CCFeedbackReport{
		SenderSSRC: 1,
		ReportBlocks: []rtcp.CCFeedbackReportBlock{
			{
				MediaSSRC:     2,
				BeginSequence: 100,
				MetricBlocks: []rtcp.CCFeedbackMetricBlock{
					{Received: true, ECN: rtcp.ECNECT1, ArrivalTimeOffset: 10},
					{Received: true, ECN: rtcp.ECNECT1, ArrivalTimeOffset: 11},
					{Received: true, ECN: rtcp.ECNCE, ArrivalTimeOffset: 12},
					{Received: false},
				},
			},
		},
		ReportTimestamp: 42,
	}
}

func TestECNCounterObserve(t *testing.T) {
	counter := &ECNCounter{}
	counter.observe([]rtcp.Packet{
		&rtcp.PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2},
		feedbackReport(),
	})
	ect1, ce := counter.Counts()
	require.EqualValues(t, 2, ect1)
	require.EqualValues(t, 1, ce)

	counter.observe([]rtcp.Packet{feedbackReport()})
	ect1, ce = counter.Counts()
	require.EqualValues(t, 4, ect1)
	require.EqualValues(t, 2, ce)
}

func TestECNInterceptorReadsFeedback(t *testing.T) {
	raw, err := rtcp.Marshal([]rtcp.Packet{feedbackReport()})
	require.NoError(t, err)

	counter := &ECNCounter{}
	i, err := (&ecnInterceptorFactory{counter: counter}).NewInterceptor("")
	require.NoError(t, err)

	reader := i.BindRTCPReader(interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		return copy(b, raw), a, nil
	}))

	buf := make([]byte, 1500)
	n, _, err := reader.Read(buf, nil)
	require.NoError(t, err)
	require.Equal(t, len(raw), n)

	ect1, ce := counter.Counts()
	require.EqualValues(t, 2, ect1)
	require.EqualValues(t, 1, ce)
}
