package pionengine

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"go.uber.org/atomic"
)

// ECNCounter accumulates ECN marks from RFC 8888 congestion control feedback
// received from the peer.
type ECNCounter struct {
	ect1 atomic.Uint64
	ce   atomic.Uint64
}

func (c *ECNCounter) Counts() (ect1, ce uint64) {
	return c.ect1.Load(), c.ce.Load()
}

func (c *ECNCounter) observe(pkts []rtcp.Packet) {
	for _, pkt := range pkts {
		report, ok := pkt.(*rtcp.CCFeedbackReport)
		if !ok {
			continue
		}
		var ect1, ce uint64
		for _, block := range report.ReportBlocks {
			for _, metric := range block.MetricBlocks {
				if !metric.Received {
					continue
				}
				switch metric.ECN {
				case rtcp.ECNECT1:
					ect1++
				case rtcp.ECNCE:
					ce++
				}
			}
		}
		if ect1 > 0 {
			c.ect1.Add(ect1)
		}
		if ce > 0 {
			c.ce.Add(ce)
		}
	}
}

type ecnInterceptorFactory struct {
	counter *ECNCounter
}

func (f *ecnInterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return &ecnInterceptor{counter: f.counter}, nil
}

type ecnInterceptor struct {
	interceptor.NoOp
	counter *ECNCounter
}

func (i *ecnInterceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return 0, nil, err
		}
		if attr == nil {
			attr = make(interceptor.Attributes)
		}
		pkts, err := attr.GetRTCPPackets(b[:n])
		if err != nil {
			// not ours to reject, the rest of the chain decides
			return n, attr, nil
		}
		i.counter.observe(pkts)
		return n, attr, nil
	})
}
