package domain

import "context"

// ChannelCalibration is one channel's noise-floor profile and safe range.
// FloorObserved false means the floor could not be measured; the SNR filter
// must disable itself for that channel rather than guess.
type ChannelCalibration struct {
	FloorMean     float64 `json:"floor_mean" yaml:"floor_mean"`
	FloorSigma    float64 `json:"floor_sigma" yaml:"floor_sigma"`
	FloorObserved bool    `json:"floor_observed" yaml:"floor_observed"`
	RangeMin      float64 `json:"range_min" yaml:"range_min"`
	RangeMax      float64 `json:"range_max" yaml:"range_max"`
	// Resolution is the instrument's least-significant-bit step; deltas under
	// two of these are quantization noise, not evidence.
	Resolution float64 `json:"resolution" yaml:"resolution"`
}

// CalibrationProfile maps channel name to its calibration.
type CalibrationProfile struct {
	Channels map[string]ChannelCalibration `json:"channels" yaml:"channels"`
}

// CalibrationSource exposes a read-only calibration profile.
type CalibrationSource interface {
	Profile(ctx context.Context) (*CalibrationProfile, error)
}
