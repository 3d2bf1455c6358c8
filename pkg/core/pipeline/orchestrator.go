// Package pipeline runs one document through extraction, derivation and
// narration and assembles the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"statement_report/pkg/core/derive"
	"statement_report/pkg/core/ingest"
	"statement_report/pkg/core/store"
	"statement_report/pkg/models"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a step of an analysis.
type State string

const (
	StatePending    State = "pending"
	StateExtracting State = "extracting"
	StateDeriving   State = "deriving"
	StateNarrating  State = "narrating"
	StateAssembled  State = "assembled"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateAssembled || s == StateFailed }

var transitions = map[State][]State{
	StatePending:    {StateExtracting, StateFailed},
	StateExtracting: {StateDeriving, StateFailed},
	StateDeriving:   {StateNarrating},
	StateNarrating:  {StateAssembled},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Extractor turns a prepared document into a validated record.
type Extractor interface {
	Extract(ctx context.Context, doc ingest.Document) (models.FinancialRecord, error)
}

// Narrator fills the narrative sections. It never fails.
type Narrator interface {
	Narrate(ctx context.Context, d derive.Derivation) models.NarrativeSet
}

// ReportRepository persists assembled reports.
type ReportRepository interface {
	Save(ctx context.Context, env store.ReportEnvelope) error
}

// ErrorReporter receives failures worth surfacing outside the logs.
type ErrorReporter func(ctx context.Context, err error, tags map[string]string)

// Input is one uploaded document.
type Input struct {
	Name      string
	MediaType string
	Data      []byte
}

// Analysis is the state of one run. Each run owns its own record, ratios and narratives.
type Analysis struct {
	ID          string
	Document    ingest.Document
	Transitions []Transition

	// ExtractionDegraded is set when extraction failed and the empty record was used.
	ExtractionDegraded bool
	ExtractionErr      error

	Result *models.ReportResult
	Err    error

	mu    sync.Mutex
	state State
}

func (a *Analysis) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Envelope returns the persisted form of an assembled analysis.
func (a *Analysis) Envelope() store.ReportEnvelope {
	env := store.ReportEnvelope{
		ID:           a.ID,
		DocumentName: a.Document.Name,
		MediaType:    a.Document.MediaType,
		Digest:       a.Document.Digest,
		Report:       a.Result,
	}
	if n := len(a.Transitions); n > 0 {
		env.CreatedAt = a.Transitions[n-1].At
	}
	if a.Result != nil {
		env.Degraded = a.Result.Narratives().Degraded()
	}
	return env
}

func (a *Analysis) advance(to State, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !allowed(a.state, to) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", a.state, to))
	}
	a.Transitions = append(a.Transitions, Transition{From: a.state, To: to, At: now})
	a.state = to
}

type Orchestrator struct {
	extractor Extractor
	narrator  Narrator
	repo      ReportRepository
	report    ErrorReporter
	degrade   bool
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Orchestrator)

// WithDegradeOnExtractionFailure continues with an empty record when extraction
// fails permanently, instead of failing the analysis.
func WithDegradeOnExtractionFailure(degrade bool) Option {
	return func(o *Orchestrator) { o.degrade = degrade }
}

func WithRepository(r ReportRepository) Option { return func(o *Orchestrator) { o.repo = r } }
func WithErrorReporter(r ErrorReporter) Option { return func(o *Orchestrator) { o.report = r } }

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewOrchestrator(extractor Extractor, narrator Narrator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		narrator:  narrator,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run analyses one document. The returned Analysis is always non-nil and terminal.
// The error is non-nil only for an unsupported or empty input, or an extraction
// failure when degrading is disabled.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Analysis, error) {
	a := &Analysis{ID: uuid.NewString(), state: StatePending}
	log := o.logger.With(zap.String("analysis_id", a.ID), zap.String("document", in.Name))
	start := o.now()

	doc, err := ingest.Prepare(in.Name, in.MediaType, in.Data)
	if err != nil {
		log.Warn("document rejected", zap.String("media_type", in.MediaType), zap.Error(err))
		return o.fail(a, err), err
	}
	a.Document = doc

	a.advance(StateExtracting, o.now())
	log.Info("extraction started", zap.String("media_type", doc.MediaType), zap.Int("bytes", len(doc.Data)))
	record, err := o.extractor.Extract(ctx, doc)
	if err != nil {
		a.ExtractionErr = err
		o.reportErr(ctx, err, map[string]string{"stage": "extraction", "analysis_id": a.ID})
		if !o.degrade {
			log.Error("analysis failed", zap.Error(err))
			return o.fail(a, err), err
		}
		log.Warn("extraction failed, continuing with empty record", zap.Error(err))
		record = models.EmptyRecord()
		a.ExtractionDegraded = true
	}

	a.advance(StateDeriving, o.now())
	d := derive.Derive(record)
	log.Info("derivation complete",
		zap.Int("ratios", d.Ratios.Len()), zap.Int("skipped_sections", len(d.Skipped())))

	a.advance(StateNarrating, o.now())
	narratives := o.narrator.Narrate(ctx, d)
	log.Info("narration complete", zap.Int("degraded_sections", len(narratives.Degraded())))

	a.Result = models.NewReportResult(d.Record, d.Ratios, narratives)
	a.advance(StateAssembled, o.now())
	log.Info("analysis assembled", zap.Duration("elapsed", o.now().Sub(start)))

	if o.repo != nil {
		// A storage failure does not undo an assembled report.
		if err := o.repo.Save(ctx, a.Envelope()); err != nil {
			log.Error("failed to persist report", zap.Error(err))
			o.reportErr(ctx, err, map[string]string{"stage": "store", "analysis_id": a.ID})
		}
	}
	return a, nil
}

func (o *Orchestrator) fail(a *Analysis, err error) *Analysis {
	a.Err = err
	a.advance(StateFailed, o.now())
	return a
}

func (o *Orchestrator) reportErr(ctx context.Context, err error, tags map[string]string) {
	if o.report == nil || errors.Is(err, context.Canceled) {
		return
	}
	o.report(ctx, err, tags)
}
