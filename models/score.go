package models

// Intensity bands for the derived 0-100 data collection score.
const (
	BandLow    = "Low"
	BandMedium = "Medium"
	BandHigh   = "High"
)

// IntensityScore summarizes how much personal data a record discloses.
// It is derived on demand from a PrivacyRecord and never persisted.
type IntensityScore struct {
	Score int    `json:"score"`
	Band  string `json:"band"`
}
