package candle

import "time"

// Supported interval labels mapped to exact second counts.
var intervalSeconds = map[string]int64{
	"15s": 15,
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"4h":  14400,
	"24h": 86400,
}

// DefaultIntervalSeconds is used when the configured label is unrecognized.
const DefaultIntervalSeconds int64 = 60

// IntervalSeconds resolves an interval label to seconds. The second return
// is false when the label is unknown and the default was applied.
func IntervalSeconds(label string) (int64, bool) {
	if sec, ok := intervalSeconds[label]; ok {
		return sec, true
	}
	return DefaultIntervalSeconds, false
}

// BucketStart floors a timestamp to the start of its interval bucket.
func BucketStart(ts time.Time, intervalSec int64) time.Time {
	sec := ts.Unix() / intervalSec * intervalSec
	return time.Unix(sec, 0).UTC()
}
