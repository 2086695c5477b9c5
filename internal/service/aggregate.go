package service

import (
	"sort"
	"time"

	"github.com/calyxbio/warrant/internal/domain"
)

// BuildObservation combines raw wells into per-condition results, applying
// the SNR filter. Wells are combined strictly in input order, so the result
// is identical no matter how the world collaborator parallelized execution.
// Masked readings stay unknown through the condition means; they are never
// coerced to a number.
func BuildObservation(p *domain.Proposal, raw []domain.RawWell, filter *SNRFilter, cycle int, mitigation bool, observedAt time.Time, rows, cols int) *domain.Observation {
	byCondition := make(map[string]*domain.ConditionResult)
	var order []string

	for _, rw := range raw {
		cr, ok := byCondition[rw.Condition]
		if !ok {
			cr = &domain.ConditionResult{Condition: rw.Condition}
			byCondition[rw.Condition] = cr
			order = append(order, rw.Condition)
		}

		well := domain.WellResult{
			Well:     rw.Well,
			Row:      rw.Row,
			Col:      rw.Col,
			Channels: make(map[string]domain.ChannelValue, len(rw.Channels)),
		}
		channels := make([]string, 0, len(rw.Channels))
		for channel := range rw.Channels {
			channels = append(channels, channel)
		}
		// Fixed channel order keeps warning lists identical across reruns.
		sort.Strings(channels)
		for _, channel := range channels {
			cv, warning, reject := filter.filterWell(rw.Well, channel, rw.Channels[channel])
			well.Channels[channel] = cv
			if warning != "" {
				cr.Warnings = append(cr.Warnings, warning)
			}
			if reject {
				cr.Rejected = true
			}
		}
		cr.Wells = append(cr.Wells, well)
	}

	obs := &domain.Observation{
		ProposalID: p.ID,
		Template:   p.Template,
		Cycle:      cycle,
		Mitigation: mitigation,
		LayoutSeed: p.LayoutSeed,
		PlateRows:  rows,
		PlateCols:  cols,
		ObservedAt: observedAt,
	}
	for _, name := range order {
		cr := byCondition[name]
		cr.Mean = conditionMeans(cr.Wells)
		obs.Conditions = append(obs.Conditions, *cr)
	}
	return obs
}

// conditionMeans averages known values per channel. A channel with no known
// readings keeps an unknown mean.
func conditionMeans(wells []domain.WellResult) map[string]domain.ChannelValue {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, w := range wells {
		for channel, cv := range w.Channels {
			if v, ok := cv.Value(); ok {
				sums[channel] += v
				counts[channel]++
			} else if _, seen := counts[channel]; !seen {
				counts[channel] = 0
			}
		}
	}
	means := make(map[string]domain.ChannelValue, len(counts))
	for channel, n := range counts {
		if n == 0 {
			means[channel] = domain.UnknownValue()
			continue
		}
		means[channel] = domain.KnownValue(sums[channel] / float64(n))
	}
	return means
}
