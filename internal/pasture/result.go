package pasture

import "math"

const (
	UnitTonnes   = "tonnes"
	UnitHectares = "ha"
)

type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type AgeArea struct {
	Bucket string   `json:"bucket"`
	Area   Quantity `json:"area"`
}

type VigorArea struct {
	Level VigorLevel `json:"level"`
	Area  Quantity   `json:"area"`
}

type LandCoverArea struct {
	ClassID   int      `json:"class_id"`
	ClassName string   `json:"class_name"`
	Area      Quantity `json:"area"`
}

// PastureStatsResult holds absolute, unrounded values. Age and vigor always
// list every bucket in fixed order; land cover lists only present classes.
type PastureStatsResult struct {
	Biomass   Quantity        `json:"biomass"`
	Age       []AgeArea       `json:"age"`
	Vigor     []VigorArea     `json:"vigor"`
	LandCover []LandCoverArea `json:"land_cover"`
}

// AgeTotal is the summed area of all age buckets in hectares.
func (r *PastureStatsResult) AgeTotal() float64 {
	total := 0.0
	for _, a := range r.Age {
		total += a.Area.Value
	}
	return total
}

// Round2 rounds for presentation only.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
