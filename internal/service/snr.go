package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/calyxbio/warrant/internal/domain"
	"go.uber.org/zap"
)

// SNRFilter masks readings that cannot be distinguished from detector noise.
// A channel whose floor was never observed gets no threshold at all: the
// filter disables itself for that channel and the fact is recorded upstream,
// which is degradation on the record rather than silent passthrough.
type SNRFilter struct {
	logger   *zap.Logger
	profile  *domain.CalibrationProfile
	kSigma   float64
	mode     domain.SNRMode
	disabled map[string]bool
}

func NewSNRFilter(profile *domain.CalibrationProfile, params domain.SNRParams, logger *zap.Logger) *SNRFilter {
	f := &SNRFilter{
		logger:   logger,
		profile:  profile,
		kSigma:   params.KSigma,
		mode:     params.Mode,
		disabled: make(map[string]bool),
	}
	for name, ch := range profile.Channels {
		if !ch.FloorObserved {
			f.disabled[name] = true
			logger.Warn("noise floor not observable, filter disabled for channel", zap.String("channel", name))
		}
	}
	return f
}

func (f *SNRFilter) Mode() domain.SNRMode { return f.mode }

// DisabledChannels lists channels the filter cannot protect, sorted for
// deterministic logging.
func (f *SNRFilter) DisabledChannels() []string {
	var out []string
	for name := range f.disabled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MinDetectable returns floor_mean + k_sigma * floor_sigma for the channel.
// ok is false when the filter is disabled for the channel (unknown channel
// or unobserved floor).
func (f *SNRFilter) MinDetectable(channel string) (float64, bool) {
	ch, exists := f.profile.Channels[channel]
	if !exists || f.disabled[channel] {
		return 0, false
	}
	return ch.FloorMean + f.kSigma*ch.FloorSigma, true
}

// SignificantDelta reports whether a difference on this channel exceeds
// quantization noise. Deltas under two least-significant-bits are ties, not
// evidence of change.
func (f *SNRFilter) SignificantDelta(channel string, delta float64) bool {
	ch, exists := f.profile.Channels[channel]
	if !exists || ch.Resolution <= 0 {
		return true
	}
	return math.Abs(delta) >= 2*ch.Resolution
}

// filterWell applies the threshold to one raw channel reading. In strict
// mode a sub-floor reading comes back unknown and poisons the condition; in
// lenient mode the value survives with a warning attached.
func (f *SNRFilter) filterWell(well, channel string, raw float64) (domain.ChannelValue, string, bool) {
	mds, ok := f.MinDetectable(channel)
	if !ok || raw >= mds {
		return domain.KnownValue(raw), "", false
	}
	warning := fmt.Sprintf("well %s channel %s reading %.4g below minimum detectable %.4g", well, channel, raw, mds)
	if f.mode == domain.SNRStrict {
		return domain.UnknownValue(), warning, true
	}
	return domain.KnownValue(raw), warning, false
}
