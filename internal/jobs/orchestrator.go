package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/contrarian/internal/analysis"
)

// Stage progress checkpoints. Entering running sets the baseline; each
// completed stage advances to its checkpoint before the next one starts.
const (
	progressNews         = 30
	progressFundamentals = 60
	progressPeers        = 80
	progressSignal       = 95
)

// TextExtractor pulls plain text out of an uploaded report file.
type TextExtractor interface {
	Extract(path string) (string, error)
}

// Ingester stores report text in the retrieval index.
type Ingester interface {
	Ingest(ctx context.Context, text, company, reportType, ingestionID string) (int, error)
}

// NewsAnalyzer runs the news sentiment stage.
type NewsAnalyzer interface {
	Analyze(ctx context.Context, company string) analysis.NewsSentiment
}

// FundamentalsAnalyzer runs the fundamentals stage. Its error return is
// fatal to the job (retrieval store unavailable); generation failures are
// absorbed inside the stage.
type FundamentalsAnalyzer interface {
	Analyze(ctx context.Context, company string) (analysis.FundamentalMetrics, error)
}

// PeerAnalyzer runs the peer comparison stage.
type PeerAnalyzer interface {
	Analyze(ctx context.Context, company string, target analysis.FundamentalMetrics) analysis.PeerComparison
}

// SignalGenerator runs the terminal signal stage.
type SignalGenerator interface {
	Generate(ctx context.Context, company string, news analysis.NewsSentiment, fundamentals analysis.FundamentalMetrics, peers analysis.PeerComparison) analysis.ContrarianSignal
}

// Orchestrator runs the four stages of a job in fixed order, mutating the
// registry as it goes. Request pacing between generative calls lives in the
// generation wrapper, so stages run back to back here.
type Orchestrator struct {
	registry     *Registry
	extractor    TextExtractor
	ingester     Ingester
	news         NewsAnalyzer
	fundamentals FundamentalsAnalyzer
	peers        PeerAnalyzer
	signal       SignalGenerator
	now          func() time.Time
}

// NewOrchestrator wires the stages together.
func NewOrchestrator(registry *Registry, extractor TextExtractor, ingester Ingester, news NewsAnalyzer, fundamentals FundamentalsAnalyzer, peers PeerAnalyzer, signal SignalGenerator) *Orchestrator {
	return &Orchestrator{
		registry:     registry,
		extractor:    extractor,
		ingester:     ingester,
		news:         news,
		fundamentals: fundamentals,
		peers:        peers,
		signal:       signal,
		now:          time.Now,
	}
}

// Run executes the job to completion. It is meant to be called in its own
// goroutine; all failures end up on the job record, never as a return value.
// Stage-internal fallbacks keep the job going; only infrastructure failures
// (file extraction, retrieval store) fail it.
func (o *Orchestrator) Run(ctx context.Context, jobID, company, reportType, filePath string) {
	o.registry.SetRunning(jobID)
	log := slog.With("job_id", jobID, "company", company)

	log.Info("starting news analysis")
	o.registry.SetStep(jobID, "news")
	newsResult := o.news.Analyze(ctx, company)
	o.registry.SetProgress(jobID, progressNews)

	log.Info("starting fundamental analysis")
	o.registry.SetStep(jobID, "fundamentals")
	text, err := o.extractor.Extract(filePath)
	if err != nil {
		o.failJob(log, jobID, fmt.Errorf("extracting report text: %w", err))
		return
	}
	if _, err := o.ingester.Ingest(ctx, text, company, reportType, jobID); err != nil {
		o.failJob(log, jobID, fmt.Errorf("ingesting report: %w", err))
		return
	}
	fundResult, err := o.fundamentals.Analyze(ctx, company)
	if err != nil {
		o.failJob(log, jobID, err)
		return
	}
	o.registry.SetProgress(jobID, progressFundamentals)

	log.Info("starting peer comparison")
	o.registry.SetStep(jobID, "peers")
	peerResult := o.peers.Analyze(ctx, company, fundResult)
	o.registry.SetProgress(jobID, progressPeers)

	log.Info("generating signal")
	o.registry.SetStep(jobID, "signal")
	signalResult := o.signal.Generate(ctx, company, newsResult, fundResult, peerResult)
	o.registry.SetProgress(jobID, progressSignal)

	o.registry.Complete(jobID, &analysis.AnalysisResult{
		CompanyName:  company,
		AnalysisDate: o.now(),
		News:         newsResult,
		Fundamentals: fundResult,
		Peers:        peerResult,
		Signal:       signalResult,
	})
	log.Info("job completed")
}

func (o *Orchestrator) failJob(log *slog.Logger, jobID string, err error) {
	log.Error("job failed", "error", err)
	o.registry.Fail(jobID, err)
}
