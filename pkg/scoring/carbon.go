package scoring

import "sort"

// Carbon intensity in kg CO2 per kWh. Static reference data; regions not listed are unknown.
var carbonIntensityByRegion = map[string]float64{
	"us-central1":     0.412,
	"us-east1":        0.412,
	"us-west1":        0.412,
	"europe-west1":    0.276,
	"europe-west4":    0.276,
	"asia-east1":      0.570,
	"asia-southeast1": 0.570,
}

// Regions eligible for the migrate-region rule
var highCarbonRegions = map[string]bool{
	"asia-east1":      true,
	"asia-southeast1": true,
}

const (
	// TargetRegion is the lowest-intensity region migrations are pointed at
	TargetRegion = "europe-west1"

	// HighIntensityThreshold is the kg/kWh above which a region counts as high-carbon
	HighIntensityThreshold = 0.50
)

// CarbonIntensity returns the intensity of a region and whether it is known
func CarbonIntensity(region string) (float64, bool) {
	v, ok := carbonIntensityByRegion[region]
	return v, ok
}

// IsHighCarbonRegion reports whether the region is in the designated high-carbon set
func IsHighCarbonRegion(region string) bool {
	return highCarbonRegions[region]
}

// KnownRegions returns the regions of the intensity table in sorted order
func KnownRegions() []string {
	regions := make([]string, 0, len(carbonIntensityByRegion))
	for region := range carbonIntensityByRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}
