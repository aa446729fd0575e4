package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
	"github.com/avocatt/accident-analyzer/pkg/logger"
)

// Inferrer is the narrow interface the pipeline needs from the inference
// client; tests substitute a fake.
type Inferrer interface {
	Infer(ctx context.Context, sub *model.Submission, doc *model.NormalizedDocument) ([]byte, error)
}

// Pipeline runs one submission through normalize -> infer -> validate ->
// assess -> render, and owns all ephemeral storage for the run. Raw bytes
// are purged on every exit path: success, validation failure, inference
// exhaustion, or timeout.
type Pipeline struct {
	normalizer *Normalizer
	inference  Inferrer
	fault      *FaultEngine
	renderer   *BriefingRenderer
	blobs      BlobStore

	runTimeout time.Duration
}

func NewPipeline(
	cfg *config.PipelineConfig,
	normalizer *Normalizer,
	inference Inferrer,
	fault *FaultEngine,
	renderer *BriefingRenderer,
	blobs BlobStore,
) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		inference:  inference,
		fault:      fault,
		renderer:   renderer,
		blobs:      blobs,
		runTimeout: time.Duration(cfg.RunTimeout),
	}
}

// Run executes the full analysis for one validated submission. Stages within
// a run are strictly sequential; runs for different submissions are fully
// independent and safe to execute concurrently.
func (p *Pipeline) Run(ctx context.Context, sub *model.Submission) (outcome *model.AnalysisOutcome, err error) {
	ctx = logger.WithSession(ctx, sub.SessionID)
	ctx, cancel := context.WithTimeout(ctx, p.runTimeout)
	defer cancel()

	start := time.Now()
	logger.Info(ctx, "pipeline run started",
		"photos", len(sub.Photos),
		"primary", sub.Primary.Filename,
	)

	if err := p.blobs.SaveSession(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist session files: %w", err)
	}

	// Ephemeral storage is released no matter how the run ends. A failed
	// purge is a warning on the outcome, never a blocked return.
	defer func() {
		purgeErr := p.blobs.PurgeSession(context.WithoutCancel(ctx), sub.SessionID)
		if purgeErr != nil {
			logger.Warn(ctx, "failed to purge session storage", "error", purgeErr)
			if outcome != nil {
				outcome.CleanupWarning = "session storage could not be fully removed"
			}
		}
	}()

	doc, err := p.normalizer.Normalize(ctx, sub)
	if err != nil {
		return nil, p.mapTimeout(ctx, err)
	}
	logPages(ctx, doc)

	raw, err := p.inference.Infer(ctx, sub, doc)
	if err != nil {
		return nil, p.mapTimeout(ctx, err)
	}

	analysis, err := ValidateExtraction(raw)
	if err != nil {
		return nil, err
	}
	analysis.SessionID = sub.SessionID
	analysis.AnalysisTimestamp = time.Now().UTC()

	p.reconcileFault(analysis)
	p.reconcilePhotos(analysis, doc)

	briefing, err := p.renderer.Render(analysis, sub.SessionID)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "pipeline run completed",
		"confidence", analysis.ExtractionConfidence,
		"missing_fields", len(analysis.MissingInformation),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return &model.AnalysisOutcome{Analysis: analysis, Briefing: briefing}, nil
}

// reconcileFault runs the deterministic fault engine over the extracted
// checkbox selections and narrative. The engine's verdict replaces the
// model's when the form carries signal; the model's numbers survive only
// when the form is silent, and disagreement between the two is recorded.
func (p *Pipeline) reconcileFault(analysis *model.CaseAnalysis) {
	narrative := analysis.CaseSummary
	for _, ind := range analysis.FaultAssessment.FaultIndicators {
		narrative += "\n" + ind
	}

	derived := p.fault.Assess(analysis.FormCheckboxes, narrative)
	if derived.PreliminaryFaultParty == nil {
		// No checkbox or narrative signal: keep whatever the extraction
		// validator already normalized from the model's own numbers.
		return
	}

	modelFa := analysis.FaultAssessment
	if modelFa.PreliminaryFaultParty != nil &&
		*modelFa.PreliminaryFaultParty != *derived.PreliminaryFaultParty {
		derived.ContestedPoints = append(derived.ContestedPoints,
			"model fault opinion differs from form-derived assessment")
		analysis.MissingInformation = mergeMissing(analysis.MissingInformation,
			[]string{"fault_assessment"})
	}

	// When the model supplied an explicit split consistent with the derived
	// party, prefer its finer-grained percentages over the engine's coarse
	// 100/0 or 50/50 split.
	if modelFa.PartyAFaultPercentage != nil && modelFa.PartyBFaultPercentage != nil &&
		modelFa.PreliminaryFaultParty != nil &&
		*modelFa.PreliminaryFaultParty == *derived.PreliminaryFaultParty {
		derived.PartyAFaultPercentage = modelFa.PartyAFaultPercentage
		derived.PartyBFaultPercentage = modelFa.PartyBFaultPercentage
	}

	derived.ContestedPoints = mergeMissing(modelFa.ContestedPoints, derived.ContestedPoints)
	if len(derived.FaultIndicators) == 0 {
		derived.FaultIndicators = modelFa.FaultIndicators
	}
	analysis.FaultAssessment = derived
}

// reconcilePhotos clamps photo analyses to the photos actually submitted and
// keeps them in submission order so client-facing numbering stays stable.
func (p *Pipeline) reconcilePhotos(analysis *model.CaseAnalysis, doc *model.NormalizedDocument) {
	if len(analysis.PhotoAnalyses) == 0 {
		return
	}
	byID := make(map[int]model.PhotoAnalysis, len(analysis.PhotoAnalyses))
	for _, pa := range analysis.PhotoAnalyses {
		if _, dup := byID[pa.PhotoID]; !dup {
			byID[pa.PhotoID] = pa
		}
	}
	ordered := make([]model.PhotoAnalysis, 0, len(doc.PhotoPages))
	for _, page := range doc.PhotoPages {
		if pa, ok := byID[page.Index]; ok {
			ordered = append(ordered, pa)
		}
	}
	analysis.PhotoAnalyses = ordered
}

// mapTimeout converts context expiry into the run-level timeout error so
// callers see a stable kind instead of a raw context error.
func (p *Pipeline) mapTimeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &model.PipelineError{Kind: model.KindPipelineTimeout, Err: err}
	}
	return err
}
