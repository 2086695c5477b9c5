package config

import (
	"fmt"
	"os"

	"github.com/calyxbio/warrant/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultRunSpec returns a spec tuned for a standard 96-well screening run.
func DefaultRunSpec() domain.RunSpec {
	return domain.RunSpec{
		Seed:        1,
		TotalBudget: 500,
		MaxCycles:   50,
		Templates: []string{
			"baseline_replicates",
			"noise_calibration",
			"dose_response",
			"exploration_screen",
		},
		CalibrationTemplates: []string{"baseline_replicates", "noise_calibration"},
		Gate: domain.GateThresholds{
			Enter:         0.25,
			Exit:          0.35,
			DFMin:         5,
			DriftMax:      0.1,
			SustainCycles: 2,
		},
		Debt: domain.DebtParams{
			Sensitivity:       0.15,
			HardThresholdBits: 3.0,
			EntropyWeight:     0.5,
		},
		SNR: domain.SNRParams{
			KSigma: 5,
			Mode:   domain.SNRStrict,
		},
		Spatial: domain.SpatialParams{
			SeverityThreshold:   0.3,
			ReplateCost:         8,
			ReplicateCostFactor: 1.0,
			ProceedPenalty:      0.5,
		},
		CostWeight: 0.01,
	}
}

// LoadRunSpec reads a YAML run spec, filling unset fields from the defaults.
func LoadRunSpec(path string) (domain.RunSpec, error) {
	spec := DefaultRunSpec()
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read run spec %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parse run spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return spec, fmt.Errorf("invalid run spec %s: %w", path, err)
	}
	return spec, nil
}
