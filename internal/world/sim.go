package world

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/calyxbio/warrant/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	plateCols = 12

	signalChannel    = "signal"
	viabilityChannel = "viability"

	blankSignal     = 0.35
	referenceSignal = 1.0
	signalSigma     = 0.05
	viabilityBase   = 0.92
	viabilitySigma  = 0.02
)

// Simulator is a deterministic plate simulator. Measurements are a pure
// function of the proposal and its layout seed, and wells are combined by
// input order, so the worker count never changes the result.
type Simulator struct {
	workers int
	logger  *zap.Logger
}

func NewSimulator(workers int, logger *zap.Logger) *Simulator {
	if workers < 1 {
		workers = 1
	}
	return &Simulator{workers: workers, logger: logger}
}

type plannedWell struct {
	condition string
	dose      float64
	row, col  int
}

func (s *Simulator) Execute(ctx context.Context, p *domain.Proposal) ([]domain.RawWell, error) {
	layout := planLayout(p)
	results := make([]domain.RawWell, len(layout))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, pw := range layout {
		i, pw := i, pw
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.measure(p.LayoutSeed, i, pw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("plate executed",
		zap.String("template", p.Template),
		zap.Int("wells", len(results)),
		zap.Int64("layout_seed", p.LayoutSeed),
		zap.Int("workers", s.workers))
	return results, nil
}

// planLayout assigns each design well a plate position. Positions are
// shuffled by the layout seed, so a replate with a new seed yields a new
// spatial arrangement of the same design.
func planLayout(p *domain.Proposal) []plannedWell {
	n := p.TotalWells()
	rows := (n + plateCols - 1) / plateCols

	positions := make([]int, rows*plateCols)
	for i := range positions {
		positions[i] = i
	}
	rng := rand.New(rand.NewSource(p.LayoutSeed))
	rng.Shuffle(len(positions), func(i, j int) {
		positions[i], positions[j] = positions[j], positions[i]
	})

	layout := make([]plannedWell, 0, n)
	idx := 0
	for _, c := range p.Conditions {
		for r := 0; r < c.Replicates; r++ {
			pos := positions[idx]
			layout = append(layout, plannedWell{
				condition: c.Name,
				dose:      c.Dose,
				row:       pos / plateCols,
				col:       pos % plateCols,
			})
			idx++
		}
	}
	return layout
}

// measure produces one well's channels from a per-well generator seeded by
// the layout seed and the well's design index. No shared state between
// wells, hence safe and identical under any parallelism.
func (s *Simulator) measure(layoutSeed int64, designIndex int, pw plannedWell) domain.RawWell {
	rng := rand.New(rand.NewSource(layoutSeed ^ (int64(designIndex)+1)*0x5DEECE66D))

	signal := blankSignal
	if pw.condition != "blank" {
		signal = referenceSignal + 0.8*pw.dose/(pw.dose+0.2)
	}

	// Some plates carry a row-wise gradient (incubator edge effect); the
	// layout seed decides how strong, deterministically.
	gradient := 0.01
	if layoutSeed%5 == 0 {
		gradient = 0.06
	}
	signal += gradient * float64(pw.row)
	if pw.row == 0 || pw.col == 0 || pw.col == plateCols-1 {
		signal -= 0.015
	}
	signal += rng.NormFloat64() * signalSigma

	viability := viabilityBase - 0.04*pw.dose + rng.NormFloat64()*viabilitySigma
	viability = math.Max(0, math.Min(1, viability))

	return domain.RawWell{
		Condition: pw.condition,
		Well:      wellName(pw.row, pw.col),
		Row:       pw.row,
		Col:       pw.col,
		Channels: map[string]float64{
			signalChannel:    signal,
			viabilityChannel: viability,
		},
	}
}

func wellName(row, col int) string {
	return fmt.Sprintf("%c%02d", 'A'+row, col+1)
}
