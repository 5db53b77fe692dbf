package topology

import (
	"fmt"
	"time"
)

// Round truncates d to whole seconds. Negative delays round to zero.
func Round(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}

	return d.Truncate(time.Second)
}

// Label encodes d, rounded, as HH_MM_SS. HH carries the total number of hours.
func Label(d time.Duration) string {
	secs := int64(Round(d) / time.Second)

	return fmt.Sprintf("%02d_%02d_%02d", secs/3600, (secs%3600)/60, secs%60)
}

// Bucket is the unit of delay topology reuse.
type Bucket struct {
	Delay time.Duration
	Label string
}

// BucketFor returns the bucket d falls into.
func BucketFor(d time.Duration) Bucket {
	r := Round(d)

	return Bucket{Delay: r, Label: Label(r)}
}

// TTL returns the bucket delay in milliseconds.
func (b Bucket) TTL() int { return int(b.Delay / time.Millisecond) }
