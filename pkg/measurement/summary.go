package measurement

import (
	"math"
	"sort"
)

// Percentile interpolates linearly between closest ranks of an ascending slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func Summarize(items []Item) Summary {
	var acc summaryAccumulator
	for i := range items {
		acc.add(&items[i])
	}
	return acc.summary()
}

type summaryAccumulator struct {
	count     int
	ceItems   int
	totalLoss int64
	rtts      []float64
}

func (a *summaryAccumulator) add(item *Item) {
	a.count++
	if item.EcnCePercent > 0 {
		a.ceItems++
	}
	a.totalLoss += item.PacketLossCount
	if item.RTTMs != nil {
		a.rtts = append(a.rtts, *item.RTTMs)
	}
}

func (a *summaryAccumulator) reset() {
	*a = summaryAccumulator{}
}

func (a *summaryAccumulator) summary() Summary {
	s := Summary{
		Count:         a.count,
		RTTSamples:    len(a.rtts),
		HasCeMarks:    a.ceItems > 0,
		CeMarkedItems: a.ceItems,
		TotalLoss:     a.totalLoss,
	}
	if len(a.rtts) == 0 {
		return s
	}

	sorted := append([]float64(nil), a.rtts...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s.MeanRTTMs = round2(sum / float64(len(sorted)))
	s.P95RTTMs = round2(Percentile(sorted, 95))
	s.P99RTTMs = round2(Percentile(sorted, 99))
	s.P9995RTTMs = round2(Percentile(sorted, 99.95))
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
