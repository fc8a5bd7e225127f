package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/metrics"
)

// Default engine timeouts.
const (
	DefaultFetchTimeout  = 15 * time.Second
	DefaultRenderTimeout = 30 * time.Second
	DefaultCrawlTimeout  = 60 * time.Second
)

// DefaultEscalation is the tier list tried after a non-usable direct fetch.
var DefaultEscalation = []Tier{TierBrowser}

// Config controls the engine's escalation and time budgets.
type Config struct {
	Escalation    []Tier
	FetchTimeout  time.Duration
	RenderTimeout time.Duration
	CrawlTimeout  time.Duration
	MaxPages      int
}

// Engine chooses the cheapest tier that yields usable content for a target.
type Engine struct {
	fetcher   Fetcher
	renderer  Renderer
	crawler   ExternalCrawler
	heuristic *Heuristic
	cfg       Config
	plan      []Tier
	logger    *zap.Logger
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeBlocked
	outcomeFailed
	outcomeSkipped
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSuccess:
		return "success"
	case outcomeBlocked:
		return "blocked"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// tierOutcome is the tagged result of one tier attempt.
type tierOutcome struct {
	kind   outcomeKind
	result Result
	reason string
	bytes  int
}

// NewEngine wires the tiers together. The renderer and crawler are optional;
// a nil tier is skipped during escalation.
func NewEngine(
	cfg Config,
	heuristic *Heuristic,
	fetcher Fetcher,
	renderer Renderer,
	crawler ExternalCrawler,
	logger *zap.Logger,
) (*Engine, error) {
	if fetcher == nil {
		return nil, errors.New("direct fetcher is required")
	}
	if heuristic == nil {
		heuristic = NewHeuristic(HeuristicConfig{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = DefaultRenderTimeout
	}
	if cfg.CrawlTimeout <= 0 {
		cfg.CrawlTimeout = DefaultCrawlTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	plan, err := buildPlan(cfg.Escalation)
	if err != nil {
		return nil, err
	}
	return &Engine{
		fetcher:   fetcher,
		renderer:  renderer,
		crawler:   crawler,
		heuristic: heuristic,
		cfg:       cfg,
		plan:      plan,
		logger:    logger,
	}, nil
}

func buildPlan(escalation []Tier) ([]Tier, error) {
	if escalation == nil {
		escalation = DefaultEscalation
	}
	plan := []Tier{TierDirect}
	seen := map[Tier]bool{TierDirect: true}
	for _, raw := range escalation {
		tier := Tier(strings.ToLower(strings.TrimSpace(string(raw))))
		switch tier {
		case TierBrowser, TierExternal:
		default:
			return nil, fmt.Errorf("unknown escalation tier %q", raw)
		}
		if seen[tier] {
			continue
		}
		seen[tier] = true
		plan = append(plan, tier)
	}
	return plan, nil
}

// Plan returns the ordered tiers the engine tries.
func (e *Engine) Plan() []Tier {
	out := make([]Tier, len(e.plan))
	copy(out, e.plan)
	return out
}

// Acquire retrieves content for rawURL. It always returns a well-formed result;
// failures surface as Success=false with no pages.
func (e *Engine) Acquire(ctx context.Context, rawURL string) Result {
	target, err := NewTarget(rawURL)
	if err != nil {
		e.logger.Warn("invalid acquisition target", zap.String("url", rawURL), zap.Error(err))
		return EmptyResult(Target{URL: rawURL})
	}
	logger := e.logger.With(zap.String("url", target.URL))

	for i, tier := range e.plan {
		if err := ctx.Err(); err != nil {
			logger.Warn("acquisition canceled", zap.String("tier", string(tier)), zap.Error(err))
			return EmptyResult(target)
		}
		start := time.Now()
		outcome := e.attempt(ctx, tier, target, i == len(e.plan)-1)
		if outcome.kind != outcomeSkipped {
			metrics.ObserveAcquire(string(tier), outcome.kind.String(), outcome.bytes, time.Since(start))
		}

		if outcome.kind == outcomeSuccess {
			logger.Debug("acquisition succeeded",
				zap.String("tier", string(tier)),
				zap.Int("pages", len(outcome.result.Pages)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return outcome.result
		}

		last := i == len(e.plan)-1
		fields := []zap.Field{
			zap.String("tier", string(tier)),
			zap.String("outcome", outcome.kind.String()),
			zap.String("reason", outcome.reason),
		}
		if last {
			logger.Warn("acquisition exhausted all tiers", fields...)
		} else {
			logger.Info("escalating acquisition", append(fields, zap.String("next", string(e.plan[i+1])))...)
		}
	}
	return EmptyResult(target)
}

// attempt runs one tier and converts panics into a failed outcome. last marks
// the final tier of the plan, whose successful output is returned as is.
func (e *Engine) attempt(ctx context.Context, tier Tier, target Target, last bool) (out tierOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = tierOutcome{kind: outcomeFailed, reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	switch tier {
	case TierDirect:
		if e.fetcher == nil {
			return tierOutcome{kind: outcomeSkipped, reason: "direct tier not configured"}
		}
		fr := e.fetcher.Fetch(ctx, target.URL, e.cfg.FetchTimeout)
		return e.fromFetch(target, tier, fr, e.classified)
	case TierBrowser:
		if e.renderer == nil {
			return tierOutcome{kind: outcomeSkipped, reason: "browser tier not configured"}
		}
		return e.fromRender(target, e.renderer.Render(ctx, target.URL, e.cfg.MaxPages, e.cfg.RenderTimeout), e.escalatedCheck(last))
	case TierExternal:
		if e.crawler == nil {
			return tierOutcome{kind: outcomeSkipped, reason: "external tier not configured"}
		}
		if !e.crawler.Available(ctx) {
			return tierOutcome{kind: outcomeSkipped, reason: "external crawler unavailable"}
		}
		fr := e.crawler.Crawl(ctx, target.URL, e.cfg.CrawlTimeout)
		return e.fromFetch(target, tier, fr, e.escalatedCheck(last))
	default:
		return tierOutcome{kind: outcomeFailed, reason: fmt.Sprintf("unknown tier %q", tier)}
	}
}

// contentCheck reports ok=true when a tier's content should be returned;
// otherwise it returns the non-success outcome to record.
type contentCheck func(content string) (tierOutcome, bool)

func (e *Engine) fromFetch(target Target, tier Tier, fr FetchResult, check contentCheck) tierOutcome {
	if !fr.Success {
		return tierOutcome{kind: outcomeFailed, reason: fr.Reason()}
	}
	if out, ok := check(fr.Content); !ok {
		return out
	}
	pageURL := fr.URL
	if pageURL == "" {
		pageURL = target.URL
	}
	title := fr.Title
	if title == "" {
		title = Title(fr.Content)
	}
	pages := []Page{{URL: pageURL, Title: title, HTML: fr.Content}}
	return tierOutcome{
		kind:   outcomeSuccess,
		result: buildResult(target, tier, pages, fr.Text),
		bytes:  len(fr.Content),
	}
}

func (e *Engine) fromRender(target Target, res Result, check contentCheck) tierOutcome {
	if !res.Success || len(res.Pages) == 0 {
		return tierOutcome{kind: outcomeFailed, reason: "render produced no pages"}
	}
	if out, ok := check(res.Pages[0].HTML); !ok {
		return out
	}
	size := 0
	for _, p := range res.Pages {
		size += len(p.HTML)
	}
	return tierOutcome{
		kind:   outcomeSuccess,
		result: buildResult(target, TierBrowser, res.Pages, res.Text),
		bytes:  size,
	}
}

// classified reports ok=true when content is usable; otherwise it returns the
// non-success outcome to record.
func (e *Engine) classified(content string) (tierOutcome, bool) {
	verdict, rule := e.heuristic.ClassifyRule(content)
	switch verdict {
	case Usable:
		return tierOutcome{}, true
	case Blocked:
		return tierOutcome{kind: outcomeBlocked, reason: rule, bytes: len(content)}, false
	default:
		return tierOutcome{kind: outcomeFailed, reason: rule, bytes: len(content)}, false
	}
}

// escalatedCheck accepts browser and external output. Size rules apply only
// to the direct tier; a block marker moves on when a further tier exists.
func (e *Engine) escalatedCheck(last bool) contentCheck {
	return func(content string) (tierOutcome, bool) {
		if last {
			return tierOutcome{}, true
		}
		if e.heuristic.Marker(content) != "" {
			return tierOutcome{kind: outcomeBlocked, reason: "block_marker", bytes: len(content)}, false
		}
		return tierOutcome{}, true
	}
}

func buildResult(target Target, tier Tier, pages []Page, text string) Result {
	var markup strings.Builder
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		markup.WriteString(p.HTML)
		markup.WriteByte('\n')
		if text == "" {
			if t := PlainText(p.HTML); t != "" {
				texts = append(texts, t)
			}
		}
	}
	if text == "" {
		text = strings.Join(texts, "\n")
	}
	meta := DetectFeatures(markup.String() + text)
	meta.PageCount = len(pages)
	return Result{
		Target:   target,
		Pages:    pages,
		Text:     text,
		Metadata: meta,
		Success:  true,
		Tier:     tier,
	}
}
