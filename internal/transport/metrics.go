package transport

// Metrics is a snapshot of one connection's observed quality, adapted
// from the reference client's Metrics struct.
type Metrics struct {
	RTTMs           float64
	PacketLoss      float64 // fraction, 0..1
	JitterMs        float64
	BitrateKbps     int
	CaptureDropped  int
	PlaybackDropped int
}

// Quality is a coarse classification of connection health.
type Quality string

const (
	QualityGood     Quality = "good"
	QualityModerate Quality = "moderate"
	QualityPoor     Quality = "poor"
)

// ClassifyQuality buckets m into good/moderate/poor using the
// reference client's thresholds: a drop rate derived from dropped
// frames over expected frames at 50 frames/sec (20ms framing).
func ClassifyQuality(m Metrics, framesExpected int) Quality {
	dropRate := 0.0
	if framesExpected > 0 {
		dropRate = float64(m.CaptureDropped+m.PlaybackDropped) / float64(framesExpected) * 100
	}

	switch {
	case m.PacketLoss >= 0.10 || m.RTTMs >= 300 || m.JitterMs >= 50 || dropRate >= 5:
		return QualityPoor
	case m.PacketLoss >= 0.02 || m.RTTMs >= 100 || m.JitterMs >= 20 || dropRate >= 1:
		return QualityModerate
	default:
		return QualityGood
	}
}
