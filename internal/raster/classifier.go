package raster

// Bucket maps raw values in [Min, Max] to Class. With MinExclusive the lower
// bound is open, (Min, Max].
type Bucket struct {
	Class        int     `json:"class"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	MinExclusive bool    `json:"min_exclusive,omitempty"`
}

func (b Bucket) contains(v float64) bool {
	if v > b.Max {
		return false
	}
	if b.MinExclusive {
		return v > b.Min
	}
	return v >= b.Min
}

// Classifier normalizes a pixel value before grouping: the offset is added,
// a sentinel is replaced by the fallback and the result is bucketed. With no
// buckets the normalized value itself is the class.
type Classifier struct {
	Offset   float64  `json:"offset"`
	Sentinel *float64 `json:"sentinel,omitempty"`
	Fallback float64  `json:"fallback"`
	Buckets  []Bucket `json:"buckets,omitempty"`
}

// Classify returns the class of a raw pixel value, or false when the value
// falls outside every bucket and must not be counted.
func (c *Classifier) Classify(raw float64) (int, bool) {
	if c == nil {
		return int(raw), true
	}
	v := raw + c.Offset
	if c.Sentinel != nil && v == *c.Sentinel {
		v = c.Fallback
	}
	if len(c.Buckets) == 0 {
		return int(v), true
	}
	for _, b := range c.Buckets {
		if b.contains(v) {
			return b.Class, true
		}
	}
	return 0, false
}
