// Package calibration provides read-only calibration profile sources for
// the noise-floor filter: a YAML file source for real instruments and a
// static default for the simulator and tests.
package calibration

import (
	"context"
	"fmt"
	"os"

	"github.com/calyxbio/warrant/internal/domain"
	"gopkg.in/yaml.v3"
)

// FileSource reads a calibration profile from a YAML file on every call, so
// a re-calibrated instrument profile is picked up by the next run.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Profile(ctx context.Context) (*domain.CalibrationProfile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read calibration profile %s: %w", s.path, err)
	}
	var profile domain.CalibrationProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse calibration profile %s: %w", s.path, err)
	}
	if len(profile.Channels) == 0 {
		return nil, fmt.Errorf("calibration profile %s has no channels", s.path)
	}
	return &profile, nil
}

// StaticSource serves a fixed profile.
type StaticSource struct {
	profile *domain.CalibrationProfile
}

func NewStaticSource(profile *domain.CalibrationProfile) *StaticSource {
	return &StaticSource{profile: profile}
}

func (s *StaticSource) Profile(ctx context.Context) (*domain.CalibrationProfile, error) {
	return s.profile, nil
}

// DefaultProfile matches the simulator's detector characteristics.
func DefaultProfile() *domain.CalibrationProfile {
	return &domain.CalibrationProfile{
		Channels: map[string]domain.ChannelCalibration{
			"signal": {
				FloorMean:     0.2645,
				FloorSigma:    0.0285,
				FloorObserved: true,
				RangeMin:      0,
				RangeMax:      4.0,
				Resolution:    0.004,
			},
			"viability": {
				FloorMean:     0.02,
				FloorSigma:    0.005,
				FloorObserved: true,
				RangeMin:      0,
				RangeMax:      1.0,
				Resolution:    0.002,
			},
		},
	}
}
