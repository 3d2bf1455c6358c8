package extract

import (
	"context"
	"errors"
	"fmt"
	"statement_report/pkg/core/ingest"
	"statement_report/pkg/core/llm"
	"statement_report/pkg/core/prompt"
	"statement_report/pkg/models"
	"time"

	"go.uber.org/zap"
)

// ErrNoReadablePayload means the provider cannot take the document inline and
// the document carries no text layer to send instead.
var ErrNoReadablePayload = errors.New("no payload the provider can read")

// Cache stores validated records by document digest.
type Cache interface {
	Get(ctx context.Context, digest string) (models.FinancialRecord, bool, error)
	Put(ctx context.Context, digest string, rec models.FinancialRecord) error
}

// Extractor populates a FinancialRecord from one document with one logical
// service request.
type Extractor struct {
	provider llm.Provider
	prompts  *prompt.Registry
	policy   llm.RetryPolicy
	cache    Cache
	logger   *zap.Logger
}

type Option func(*Extractor)

func WithRetryPolicy(p llm.RetryPolicy) Option { return func(e *Extractor) { e.policy = p } }
func WithCache(c Cache) Option                 { return func(e *Extractor) { e.cache = c } }
func WithPrompts(r *prompt.Registry) Option    { return func(e *Extractor) { e.prompts = r } }

func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(provider llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		provider: provider,
		prompts:  prompt.Get(),
		policy:   llm.DefaultRetryPolicy(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the validated record or an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, doc ingest.Document) (models.FinancialRecord, error) {
	log := e.logger.With(zap.String("document", doc.Name), zap.String("media_type", doc.MediaType))

	if e.cache != nil && doc.Digest != "" {
		rec, ok, err := e.cache.Get(ctx, doc.Digest)
		if err != nil {
			log.Warn("extraction cache read failed", zap.Error(err))
		} else if ok {
			log.Info("extraction cache hit", zap.String("digest", doc.Digest))
			return rec, nil
		}
	}

	req, err := e.buildRequest(doc)
	if err != nil {
		return models.FinancialRecord{}, &ExtractionError{Kind: KindPermanent, Cause: err}
	}

	policy := e.policy
	policy.OnRetry = func(err error, wait time.Duration) {
		log.Warn("extraction attempt failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}

	start := time.Now()
	raw, attempts, err := policy.Do(ctx, func(ctx context.Context) (string, error) {
		return e.provider.Generate(ctx, req)
	})
	if err != nil {
		kind := KindPermanent
		if llm.IsTransient(err) {
			kind = KindTransient
		}
		log.Error("extraction call failed",
			zap.String("kind", kind.String()), zap.Int("attempts", attempts), zap.Error(err))
		return models.FinancialRecord{}, &ExtractionError{Kind: kind, Attempts: attempts, Cause: err}
	}

	rec, err := Parse(raw)
	if err != nil {
		log.Error("extraction output rejected", zap.Int("attempts", attempts), zap.Error(err))
		return models.FinancialRecord{}, &ExtractionError{Kind: KindPermanent, Attempts: attempts, Cause: err}
	}

	log.Info("extraction complete",
		zap.String("provider", e.provider.Name()),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(start)))

	if e.cache != nil && doc.Digest != "" {
		if err := e.cache.Put(ctx, doc.Digest, rec); err != nil {
			log.Warn("extraction cache write failed", zap.Error(err))
		}
	}
	return rec, nil
}

func (e *Extractor) buildRequest(doc ingest.Document) (llm.Request, error) {
	system, user, err := e.prompts.Render(prompt.PromptIDs.Extraction, nil)
	if err != nil {
		return llm.Request{}, err
	}
	req := llm.Request{SystemPrompt: system, Instruction: user, Mode: llm.ModeJSON}

	switch {
	case llm.AcceptsDocument(e.provider, doc.MediaType):
		req.Document = &llm.Blob{MIMEType: doc.MediaType, Data: doc.Data}
	case doc.Text != "":
		req.Context = "Document text:\n" + doc.Text
	default:
		return llm.Request{}, fmt.Errorf("%w: provider %s, document %s (%s)",
			ErrNoReadablePayload, e.provider.Name(), doc.Name, doc.MediaType)
	}
	return req, nil
}
