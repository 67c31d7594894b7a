package measurement

// Item is one enriched sample. Field names match the telemetry ingest endpoint.
type Item struct {
	TimestampMs     int64    `json:"timeStampMs"`
	RTTMs           *float64 `json:"rttMs,omitempty"`
	LoadKbits       *float64 `json:"loadkbits,omitempty"`
	EcnCePercent    float64  `json:"ecnCePercent"`
	PacketLossCount int64    `json:"packetLossCount"`
	CellID          int64    `json:"cellId"`
	PCI             int      `json:"pci"`
	Band            int      `json:"band"`
	StreamID        string   `json:"streamId"`
	SessionName     string   `json:"sessionName"`
	IsNRSA          int      `json:"isNrSa"`
	Dbm             *int     `json:"dbm,omitempty"`
	Lat             *float64 `json:"lat,omitempty"`
	Lon             *float64 `json:"lon,omitempty"`
}

// Summary describes a finished call. RTT figures are in milliseconds and
// rounded to two decimals.
type Summary struct {
	Count         int     `json:"count"`
	RTTSamples    int     `json:"rttSamples"`
	HasCeMarks    bool    `json:"hasCe"`
	CeMarkedItems int     `json:"ceMarkedItems"`
	TotalLoss     int64   `json:"totalLoss"`
	MeanRTTMs     float64 `json:"avgRttMs"`
	P95RTTMs      float64 `json:"p95RttMs"`
	P99RTTMs      float64 `json:"p99RttMs"`
	P9995RTTMs    float64 `json:"p9995RttMs"`
}
