package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
	"github.com/JakeFAU/leadgraph-enricher/internal/metrics"
	"github.com/JakeFAU/leadgraph-enricher/internal/progress"
)

// Object names written under <prefix>/<run id>/.
const (
	RecordsFile = "records.jsonl"
	SummaryFile = "summary.json"
)

// Notification is the payload published when a run ends.
type Notification struct {
	RunID      string `json:"run_id"`
	Fatal      bool   `json:"fatal"`
	Found      int    `json:"found"`
	Enriched   int    `json:"enriched"`
	Generated  int    `json:"generated"`
	DatasetURI string `json:"dataset_uri,omitempty"`
	SummaryURI string `json:"summary_uri,omitempty"`
}

// finish writes the dataset and the summary, exactly once, even when the run
// failed or ctx was canceled.
func (p *Pipeline) finish(ctx context.Context, st *runState, runErr error) Result {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FlushTimeout)
	defer cancel()

	if runErr != nil {
		st.summary.Fatal = true
		st.addError(runErr)
		st.logger.Error("run failed", zap.Error(runErr))
	}
	res := Result{Records: append([]lead.Record(nil), st.records...)}

	if p.deps.Blobs != nil {
		uri, err := p.writeRecords(flushCtx, st)
		if err != nil {
			st.addError(err)
			st.logger.Error("write records dataset", zap.Error(err))
		} else {
			res.DatasetURI = uri
		}
	}

	st.summary.FinishedAt = p.deps.Clock.Now()
	st.summary.ElapsedMs = st.summary.FinishedAt.Sub(st.summary.StartedAt).Milliseconds()
	res.Summary = st.summary

	if p.deps.Blobs != nil {
		uri, err := p.writeSummary(flushCtx, st.summary)
		if err != nil {
			st.logger.Error("write run summary", zap.Error(err))
		} else {
			res.SummaryURI = uri
		}
	}
	if p.deps.Summaries != nil {
		if err := p.deps.Summaries.SaveSummary(flushCtx, st.summary); err != nil {
			st.logger.Error("save run summary", zap.Error(err))
		}
	}
	if p.deps.Publisher != nil && p.cfg.NotifyTopic != "" {
		note := Notification{
			RunID:      st.summary.RunID,
			Fatal:      st.summary.Fatal,
			Found:      st.summary.Found,
			Enriched:   st.summary.Enriched,
			Generated:  st.summary.Generated,
			DatasetURI: res.DatasetURI,
			SummaryURI: res.SummaryURI,
		}
		if id, err := p.deps.Publisher.Publish(flushCtx, p.cfg.NotifyTopic, note); err != nil {
			st.logger.Error("publish run notification", zap.Error(err))
		} else {
			st.logger.Debug("run notification published", zap.String("message_id", id))
		}
	}

	metrics.ObserveRun(runStatus(runErr))
	evt := progress.Event{
		RunID: st.summary.RunID,
		Stage: progress.StageRunDone,
		Dur:   max(st.summary.FinishedAt.Sub(st.summary.StartedAt), 0),
	}
	if runErr != nil {
		evt.Stage = progress.StageRunError
		evt.Note = runErr.Error()
	}
	p.emit(evt)

	st.logger.Info("run finished",
		zap.Int("found", st.summary.Found),
		zap.Int("deduped", st.summary.Deduped),
		zap.Int("filtered", st.summary.Filtered),
		zap.Int("enriched", st.summary.Enriched),
		zap.Int("scored", st.summary.Scored),
		zap.Int("generated", st.summary.Generated),
		zap.Int("errors", len(st.summary.Errors)),
		zap.Int64("elapsed_ms", st.summary.ElapsedMs),
		zap.Bool("fatal", st.summary.Fatal),
	)
	return res
}

func (p *Pipeline) writeRecords(ctx context.Context, st *runState) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range st.records {
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
	}
	name := path.Join(p.cfg.OutputPrefix, st.summary.RunID, RecordsFile)
	uri, err := p.deps.Blobs.PutObject(ctx, name, "application/x-ndjson", &buf)
	if err != nil {
		return "", fmt.Errorf("output records: %w", err)
	}
	return uri, nil
}

func (p *Pipeline) writeSummary(ctx context.Context, summary lead.RunSummary) (string, error) {
	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	name := path.Join(p.cfg.OutputPrefix, summary.RunID, SummaryFile)
	uri, err := p.deps.Blobs.PutObject(ctx, name, "application/json", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("output summary: %w", err)
	}
	return uri, nil
}
