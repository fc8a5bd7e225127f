package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
	"github.com/JakeFAU/leadgraph-enricher/internal/policy/ratelimit"
	"github.com/JakeFAU/leadgraph-enricher/internal/progress"
)

func (p *Pipeline) generate(ctx context.Context, st *runState) {
	if p.deps.Generator == nil {
		p.disableGeneration(st, lead.ErrConfigurationMissing)
		return
	}
	var candidates []int
	for i, rec := range st.records {
		if rec.Score != nil && rec.Score.Value >= p.cfg.MinGenerateScore {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		st.logger.Info("no records qualify for generation", zap.Int("min_score", p.cfg.MinGenerateScore))
		return
	}

	// A missing credential disables the stage: cancel the remaining calls
	// instead of failing each one.
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var disabled error

	caller := ratelimit.NewCaller(p.cfg.GenerationSpacing, st.logger)
	results := ratelimit.Call(genCtx, caller, candidates, func(ctx context.Context, idx int) (lead.Outreach, error) {
		out, err := p.deps.Generator.Generate(ctx, st.records[idx])
		if err != nil && errors.Is(err, lead.ErrConfigurationMissing) {
			disabled = err
			cancel()
		}
		return out, err
	})

	runID := st.summary.RunID
	for i, res := range results {
		rec := &st.records[candidates[i]]
		if res.Err != nil {
			if disabled != nil && ctx.Err() == nil &&
				(errors.Is(res.Err, lead.ErrConfigurationMissing) || errors.Is(res.Err, context.Canceled)) {
				continue
			}
			st.addError(&lead.UnitError{RecordID: rec.ID, Stage: "generate", Err: res.Err})
			p.emit(progress.Event{
				RunID:    runID,
				Stage:    progress.StageGenerateError,
				RecordID: rec.ID,
				Note:     res.Err.Error(),
			})
			continue
		}
		if res.Value.Empty() {
			continue
		}
		outreach := res.Value
		rec.Outreach = &outreach
		st.summary.Generated++
		p.emit(progress.Event{RunID: runID, Stage: progress.StageGenerateDone, RecordID: rec.ID})
	}
	if disabled != nil {
		p.disableGeneration(st, disabled)
	}
}

// disableGeneration records a configuration gap once per run.
func (p *Pipeline) disableGeneration(st *runState, err error) {
	if st.generationDisabled {
		return
	}
	st.generationDisabled = true
	st.logger.Warn("outreach generation disabled for this run", zap.Error(err))
	st.addError(&lead.UnitError{RecordID: "*", Stage: "generate", Err: err})
}
