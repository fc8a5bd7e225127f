package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
	"github.com/JakeFAU/leadgraph-enricher/internal/dispatcher"
	"github.com/JakeFAU/leadgraph-enricher/internal/hash/sha256"
	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
	"github.com/JakeFAU/leadgraph-enricher/internal/progress"
)

// unit is one record's acquisition task. The task writes only its own signals
// field; the record itself is updated after the batch phase ends.
type unit struct {
	index    int
	recordID string
	target   acquire.Target
	signals  lead.Signals
	empty    bool
}

func (p *Pipeline) enrich(ctx context.Context, st *runState) {
	units := make([]*unit, 0, len(st.records))
	for i, rec := range st.records {
		if rec.Website == "" {
			continue
		}
		target, err := acquire.NewTarget(rec.Website)
		if err != nil {
			st.addError(&lead.UnitError{RecordID: rec.ID, Stage: "enrich", Err: err})
			st.logger.Warn("record website rejected", zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		if p.deps.SkipHosts != nil && p.deps.SkipHosts.IsBlocked(target.Host) {
			st.logger.Info("record website is a platform page; not enriched",
				zap.String("record_id", rec.ID),
				zap.String("host", target.Host),
			)
			continue
		}
		units = append(units, &unit{index: i, recordID: rec.ID, target: target})
	}
	if len(units) == 0 {
		st.logger.Info("no records to enrich")
		return
	}

	runID := st.summary.RunID
	d := dispatcher.New(p.cfg.Enrichment, st.logger)
	report := dispatcher.Run(ctx, d, units, func(ctx context.Context, u *unit) error {
		return p.enrichUnit(ctx, runID, u)
	})

	empty := 0
	for i, outcome := range report.Outcomes {
		u := units[i]
		if outcome.Err != nil {
			st.addError(&lead.UnitError{RecordID: u.recordID, Stage: "enrich", Err: outcome.Err})
			st.logger.Warn("record left unenriched",
				zap.String("record_id", u.recordID),
				zap.String("host", u.target.Host),
				zap.Error(outcome.Err),
			)
			p.emit(progress.Event{
				RunID:    runID,
				Stage:    progress.StageUnitError,
				RecordID: u.recordID,
				Host:     u.target.Host,
				Dur:      outcome.Duration,
				Note:     outcome.Err.Error(),
			})
			continue
		}
		if u.empty {
			empty++
			st.logger.Info("record website yielded no signal",
				zap.String("record_id", u.recordID),
				zap.String("host", u.target.Host),
			)
			p.emit(progress.Event{
				RunID:    runID,
				Stage:    progress.StageUnitEmpty,
				RecordID: u.recordID,
				Host:     u.target.Host,
				Dur:      outcome.Duration,
			})
			continue
		}
		st.records[u.index].Signals = u.signals
		st.summary.Enriched++
		p.emit(progress.Event{
			RunID:    runID,
			Stage:    progress.StageUnitDone,
			RecordID: u.recordID,
			Host:     u.target.Host,
			Tier:     u.signals.Tier,
			Pages:    u.signals.PageCount,
			Dur:      outcome.Duration,
		})
	}
	st.logger.Info("enrichment finished",
		zap.Int("units", len(units)),
		zap.Int("enriched", report.Completed-empty),
		zap.Int("empty", empty),
		zap.Int("failed", report.Failed),
		zap.Int("max_in_flight", report.MaxInFlight),
	)
}

func (p *Pipeline) enrichUnit(ctx context.Context, runID string, u *unit) error {
	p.emit(progress.Event{
		RunID:    runID,
		Stage:    progress.StageUnitStart,
		RecordID: u.recordID,
		Host:     u.target.Host,
	})
	if p.deps.Politeness != nil {
		if err := p.deps.Politeness.Wait(ctx, u.target.URL); err != nil {
			return fmt.Errorf("wait for host slot: %w", err)
		}
	}
	res := p.deps.Acquirer.Acquire(ctx, u.target.URL)
	if !res.Success {
		u.empty = true
		return nil
	}
	u.signals = signalsFrom(res)
	return nil
}

// signalsFrom converts one fully classified acquisition into record signals.
func signalsFrom(res acquire.Result) lead.Signals {
	sig := lead.Signals{
		Enriched:         true,
		Tier:             string(res.Tier),
		PageCount:        res.Metadata.PageCount,
		HasContactForm:   res.Metadata.HasContactForm,
		HasBookingWidget: res.Metadata.HasBookingWidget,
		HasChatWidget:    res.Metadata.HasChatWidget,
		ContentHash:      sha256.Fingerprint(res.Text),
	}
	if len(res.Pages) > 0 {
		sig.Title = res.Pages[0].Title
	}
	return sig
}
