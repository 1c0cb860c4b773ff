// Package session ties the pipeline together for one dataset context:
// upload replaces the registered dataset atomically, and questions run the
// translate → validate → execute chain against a consistent schema/dataset
// pairing. Independent sessions share nothing.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datasage-io/datasage/internal/config"
	"github.com/datasage-io/datasage/internal/dataset"
	"github.com/datasage-io/datasage/internal/engine"
	"github.com/datasage-io/datasage/internal/errs"
	"github.com/datasage-io/datasage/internal/logger"
	"github.com/datasage-io/datasage/internal/profile"
	"github.com/datasage-io/datasage/internal/safety"
	"github.com/datasage-io/datasage/internal/translate"
)

// Relation is the fixed name the uploaded dataset is registered under.
const Relation = "df"

// Handle identifies one registered dataset generation. Every upload bumps
// the generation, so answers can say which dataset they were computed from.
type Handle struct {
	ID         string `json:"id"`
	Generation int    `json:"generation"`
}

// DatasetInfo describes the currently registered dataset.
type DatasetInfo struct {
	Handle     Handle                     `json:"handle"`
	Name       string                     `json:"name"`
	RowCount   int                        `json:"row_count"`
	UploadedAt time.Time                  `json:"uploaded_at"`
	Columns    []profile.ColumnDescriptor `json:"columns"`
}

// Answer is one question's full outcome.
type Answer struct {
	Handle      Handle              `json:"handle"`
	SQL         string              `json:"sql"`
	Origin      translate.Origin    `json:"origin"`
	Assumptions []string            `json:"assumptions,omitempty"`
	Result      *engine.QueryResult `json:"result"`
}

// state is the atomically swapped schema/dataset pairing.
type state struct {
	handle     Handle
	name       string
	uploadedAt time.Time
	schema     *profile.Schema
	eng        *engine.Engine
}

// Session is one dataset context. Questions hold the read lock for their
// whole pipeline and Upload takes the write lock for the swap, so an
// in-flight question always completes against the dataset it started with
// and the old engine is only closed once no question can still touch it.
type Session struct {
	cfg *config.Config
	log *logger.Logger

	rules *translate.Translator
	model *translate.ModelTranslator
	guard *safety.Validator

	mu    sync.RWMutex
	state *state

	lastMu sync.Mutex
	last   *engine.QueryResult
}

// New builds an empty session. No dataset is registered until Upload.
func New(cfg *config.Config, log *logger.Logger) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &Session{
		cfg:   cfg,
		log:   log,
		rules: translate.NewTranslator(Relation, cfg.Limits.DefaultRowLimit),
		model: translate.NewModelTranslator(translate.ModelConfig{
			BaseURL:        cfg.Model.BaseURL,
			Name:           cfg.Model.Name,
			APIKey:         cfg.Model.APIKey,
			Timeout:        cfg.Model.Timeout.Std(),
			RetryTransient: cfg.Model.RetryTransient,
		}, Relation, log),
		guard: safety.NewValidator(Relation, cfg.Limits.DefaultRowLimit, cfg.Limits.MaxRowLimit),
	}
}

// Upload parses, profiles, and registers a new dataset, replacing whatever
// was registered before. The swap is atomic: the new engine is fully loaded
// before it becomes visible, and the old engine is closed only after.
func (s *Session) Upload(ctx context.Context, name string, r io.Reader) (*DatasetInfo, error) {
	table, err := dataset.ReadCSV(r)
	if err != nil {
		return nil, err
	}

	schema := profile.Profile(table, profile.Config{
		SampleRows:    s.cfg.Profile.SampleRows,
		TopValueCount: s.cfg.Profile.TopValueCount,
	})

	eng, err := engine.New(Relation, s.log)
	if err != nil {
		return nil, err
	}
	if err := eng.Register(ctx, table, schema); err != nil {
		eng.Close()
		return nil, err
	}

	s.mu.Lock()
	prev := s.state
	gen := 1
	if prev != nil {
		gen = prev.handle.Generation + 1
	}
	s.state = &state{
		handle:     Handle{ID: uuid.NewString(), Generation: gen},
		name:       name,
		uploadedAt: time.Now().UTC(),
		schema:     schema,
		eng:        eng,
	}
	info := s.infoLocked()

	// A stale result must not export against the new dataset.
	s.lastMu.Lock()
	s.last = nil
	s.lastMu.Unlock()
	s.mu.Unlock()

	// No question can still hold prev: the write lock waited them out.
	if prev != nil {
		prev.eng.Close()
	}

	s.log.With().Str("dataset", name).Int("rows", schema.RowCount).
		Int("generation", gen).Logger().Info("dataset uploaded")
	return info, nil
}

// Ask answers one question against the registered dataset. useModel selects
// the model-assisted path; when it fails and fallback is configured, the
// rule path answers instead. Either way the SQL goes through the validator
// before execution.
func (s *Session) Ask(ctx context.Context, question string, useModel bool) (*Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	if st == nil {
		return nil, errs.New(errs.ErrKindNoDataset, "no dataset has been uploaded")
	}

	res, err := s.translateQuestion(ctx, question, st.schema, useModel)
	if err != nil {
		return nil, err
	}

	verdict := s.guard.Validate(res.SQL)
	if !verdict.OK {
		return nil, errs.New(errs.ErrKindUnsafeQuery,
			"generated query was rejected: "+string(verdict.Reason))
	}

	result, err := st.eng.Execute(ctx, verdict.SQL)
	if err != nil {
		return nil, err
	}

	s.lastMu.Lock()
	s.last = result
	s.lastMu.Unlock()

	s.log.With().Str("origin", string(res.Origin)).Int("rows", len(result.Rows)).
		Dur("duration", result.Duration).Logger().Info("question answered")

	return &Answer{
		Handle:      st.handle,
		SQL:         verdict.SQL,
		Origin:      res.Origin,
		Assumptions: res.Assumptions,
		Result:      result,
	}, nil
}

// translateQuestion produces candidate SQL. On the model path the candidate
// is validated here: a rejected completion counts as the model being
// unavailable, so the configured rule fallback applies to it like any other
// model failure.
func (s *Session) translateQuestion(ctx context.Context, question string, schema *profile.Schema, useModel bool) (translate.Result, error) {
	if !useModel {
		return s.rules.Translate(question, schema)
	}

	res, err := s.model.Translate(ctx, question, schema)
	if err == nil {
		verdict := s.guard.Validate(res.SQL)
		if verdict.OK {
			res.SQL = verdict.SQL
			return res, nil
		}
		err = errs.New(errs.ErrKindTranslationUnavailable,
			"model produced a query that failed validation: "+string(verdict.Reason))
	}
	if !s.cfg.Model.FallbackToRules || !errs.IsTranslationUnavailable(err) {
		return translate.Result{}, err
	}
	s.log.With().Err(err).Logger().Warn("model translation unavailable, using rules")
	return s.rules.Translate(question, schema)
}

// Info returns the registered dataset's metadata, or a no-dataset error.
func (s *Session) Info() (*DatasetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, errs.New(errs.ErrKindNoDataset, "no dataset has been uploaded")
	}
	return s.infoLocked(), nil
}

func (s *Session) infoLocked() *DatasetInfo {
	return &DatasetInfo{
		Handle:     s.state.handle,
		Name:       s.state.name,
		RowCount:   s.state.schema.RowCount,
		UploadedAt: s.state.uploadedAt,
		Columns:    s.state.schema.Columns,
	}
}

// LastResult returns the most recent query result for export. It is cleared
// on every upload so a stale result never exports against a new dataset.
func (s *Session) LastResult() (*engine.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, errs.New(errs.ErrKindNoDataset, "no dataset has been uploaded")
	}

	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if s.last == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "no query has produced a result yet")
	}
	return s.last, nil
}

// Close releases the session's engine.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	err := s.state.eng.Close()
	s.state = nil
	return err
}
