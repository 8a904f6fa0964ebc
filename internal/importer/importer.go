// Package importer drives one question import from parsed input through
// validation, taxonomy reconciliation and sequential persistence.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/docx"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/hydrate"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/parse"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
	syncx "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/sync"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

// ProgressFunc receives the completion percentage after each item.
type ProgressFunc func(percent int)

// EventLog records completed imports.
type EventLog interface {
	Append(ctx context.Context, e syncx.Event) error
}

type Importer struct {
	Extractor  *parse.Extractor
	Reconciler *taxonomy.Reconciler
	Hydrator   *hydrate.Hydrator
	Repo       question.Repository
	Events     EventLog // optional
	Log        logrus.FieldLogger
	// OnSuccess fires after a run that persisted at least one question.
	OnSuccess func(s *Session, r Result)
}

func New(ex *parse.Extractor, rec *taxonomy.Reconciler, h *hydrate.Hydrator, repo question.Repository, log logrus.FieldLogger) *Importer {
	return &Importer{Extractor: ex, Reconciler: rec, Hydrator: h, Repo: repo, Log: log}
}

// ParseText segments and validates word-export text.
func (im *Importer) ParseText(source, text string) *Session {
	s := newSession(source)
	im.accept(s, im.Extractor.ParseText(text))
	return s
}

// ParseDocument reads a .docx, .txt or .md document.
func (im *Importer) ParseDocument(name string, r io.Reader) (*Session, error) {
	var text string
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".docx":
		t, err := docx.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		text = t
	case ".txt", ".md", ".markdown":
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		text = strings.TrimPrefix(string(b), "\ufeff")
	default:
		return nil, fmt.Errorf("unsupported document type %q", ext)
	}
	return im.ParseText(name, text), nil
}

// ParseRows extracts spreadsheet rows, header excluded.
func (im *Importer) ParseRows(source string, rows [][]string) *Session {
	s := newSession(source)
	im.accept(s, im.Extractor.ExtractRows(rows))
	return s
}

// ParseWorkbook reads rows of the named sheet (first sheet when empty).
func (im *Importer) ParseWorkbook(source string, r io.Reader, sheet string) (*Session, error) {
	rows, err := parse.ReadWorkbook(r, sheet)
	if err != nil {
		return nil, fmt.Errorf("read workbook %s: %w", source, err)
	}
	return im.ParseRows(source, rows), nil
}

// ParseQuestions starts a session from already extracted questions.
func (im *Importer) ParseQuestions(source string, qs []question.ParsedQuestion) *Session {
	s := newSession(source)
	im.accept(s, qs)
	return s
}

func (im *Importer) accept(s *Session, qs []question.ParsedQuestion) {
	valid, invalid := parse.Validate(qs)
	s.set(func() {
		s.parsed = len(qs)
		s.valid = valid
		s.invalid = invalid
		if len(invalid) > 0 {
			s.state = StateAwaitingInvalidConfirmation
		} else {
			s.state = StateParsed
		}
	})
	im.Log.WithFields(logrus.Fields{"session": s.ID, "source": s.Source, "valid": len(valid), "invalid": len(invalid)}).
		Info("questions parsed")
}

// ConfirmInvalid continues with the valid subset or cancels the run.
func (im *Importer) ConfirmInvalid(s *Session, proceed bool) error {
	s.step.Lock()
	defer s.step.Unlock()
	if s.state != StateAwaitingInvalidConfirmation {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	s.set(func() {
		if proceed {
			s.state = StateParsed
		} else {
			s.state = StateCancelled
		}
	})
	if !proceed {
		return ErrCancelled
	}
	return nil
}

// Reconcile compares the batch with the catalog. It pauses in
// StateAwaitingTaxonomyConfirmation when nodes are missing.
func (im *Importer) Reconcile(ctx context.Context, s *Session) error {
	s.step.Lock()
	defer s.step.Unlock()
	if s.state != StateParsed {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	return im.reconcile(ctx, s)
}

func (im *Importer) reconcile(ctx context.Context, s *Session) error {
	snap, err := im.Reconciler.ComputeMissing(ctx, s.valid)
	if err != nil {
		s.set(func() { s.state, s.err = StateFailed, err.Error() })
		return err
	}
	s.set(func() {
		s.snapshot = snap
		if snap.HasMissing() && !s.confirmed {
			s.state = StateAwaitingTaxonomyConfirmation
		}
	})
	return nil
}

// ConfirmTaxonomy provisions the missing subjects and knowledge points.
// A subject that cannot be created fails the whole run.
func (im *Importer) ConfirmTaxonomy(ctx context.Context, s *Session) error {
	s.step.Lock()
	defer s.step.Unlock()
	if s.state != StateAwaitingTaxonomyConfirmation {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	report, err := im.Reconciler.ProvisionMissing(ctx, s.snapshot)
	if err != nil {
		s.set(func() { s.provision, s.state, s.err = report, StateFailed, err.Error() })
		im.Log.WithError(err).WithField("session", s.ID).Error("taxonomy provisioning failed")
		return err
	}
	s.set(func() {
		s.provision = report
		s.confirmed = true
		s.state = StateParsed
	})
	im.Log.WithFields(logrus.Fields{
		"session":          s.ID,
		"subjects":         len(report.CreatedSubjects),
		"knowledge_points": len(report.CreatedKnowledgePoints),
		"failures":         len(report.Failures),
	}).Info("taxonomy provisioned")
	return nil
}

// DeclineTaxonomy cancels a run paused on missing taxonomy.
func (im *Importer) DeclineTaxonomy(s *Session) error {
	s.step.Lock()
	defer s.step.Unlock()
	if s.state != StateAwaitingTaxonomyConfirmation {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	s.set(func() { s.state = StateCancelled })
	return ErrCancelled
}

// Run persists the valid questions one at a time. A failing item is
// recorded in the result and the loop moves on; there is no early exit.
// Once started, a run goes through every item even if ctx is cancelled.
func (im *Importer) Run(ctx context.Context, s *Session, progress ProgressFunc) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	s.step.Lock()
	defer s.step.Unlock()
	if s.state != StateParsed {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	if s.snapshot == nil {
		if err := im.reconcile(ctx, s); err != nil {
			return Result{}, err
		}
		if s.state != StateParsed {
			return Result{}, fmt.Errorf("%w: %s", ErrInvalidState, s.state)
		}
	}
	s.set(func() { s.state, s.progress = StateImporting, 0 })
	log := im.Log.WithField("session", s.ID)

	dups := im.duplicates(ctx, s.valid, log)
	s.set(func() { s.duplicates = dups })

	res := Result{Errors: []string{}}
	total := len(s.valid)
	for i := range s.valid {
		q := s.valid[i]
		err := im.importOne(ctx, &q, s.snapshot)
		s.set(func() { s.valid[i] = q })
		if err != nil {
			res.FailedCount++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", q.Title, err))
			log.WithError(err).WithField("title", q.Title).Warn("question import failed")
		} else {
			res.SuccessCount++
		}
		pct := int(math.Round(float64(i+1) / float64(total) * 100))
		s.set(func() { s.progress = pct })
		if progress != nil {
			progress(pct)
		}
	}

	s.set(func() { s.state, s.result = StateCompleted, &res })
	log.WithFields(logrus.Fields{"succeeded": res.SuccessCount, "failed": res.FailedCount}).Info("import completed")

	if res.SuccessCount > 0 {
		im.recordCompletion(ctx, s, res, log)
		if im.OnSuccess != nil {
			im.OnSuccess(s, res)
		}
	}
	return res, nil
}

func (im *Importer) importOne(ctx context.Context, q *question.ParsedQuestion, snap *taxonomy.Snapshot) error {
	q.Title = im.Hydrator.Hydrate(ctx, q.Title)
	q.Explanation = im.Hydrator.Hydrate(ctx, q.Explanation)
	q.Options = im.Hydrator.HydrateAll(ctx, q.Options)

	sid, ok := snap.SubjectID(q.Subject)
	if !ok {
		return fmt.Errorf("%w: %q", taxonomy.ErrSubjectUnresolved, q.Subject)
	}
	kps, err := im.Reconciler.ResolveKnowledgePoints(ctx, *q, snap)
	if err != nil {
		return err
	}
	p := question.Payload{
		Title:             q.Title,
		Type:              q.Type,
		Difficulty:        q.Difficulty,
		SubjectID:         sid,
		KnowledgePointIDs: kps,
		Options:           q.Options,
		CorrectAnswer:     q.CorrectAnswer,
		Explanation:       q.Explanation,
		Tags:              q.Tags,
	}
	if !q.Type.IsChoice() {
		p.Options = nil
	}
	_, err = im.Repo.Create(ctx, p)
	return err
}

// duplicates is advisory: a failed check is logged and ignored.
func (im *Importer) duplicates(ctx context.Context, qs []question.ParsedQuestion, log logrus.FieldLogger) []string {
	if len(qs) == 0 {
		return nil
	}
	titles := make([]string, 0, len(qs))
	for _, q := range qs {
		titles = append(titles, q.Title)
	}
	found, err := im.Repo.CheckDuplicateTitles(ctx, titles)
	if err != nil {
		log.WithError(err).Warn("duplicate title check failed")
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, t := range titles {
		if found[t] && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		log.WithField("count", len(out)).Info("titles already present in the question bank")
	}
	return out
}

func (im *Importer) recordCompletion(ctx context.Context, s *Session, res Result, log logrus.FieldLogger) {
	if im.Events == nil {
		return
	}
	data, err := json.Marshal(struct {
		Source string `json:"source"`
		Result
	}{s.Source, res})
	if err != nil {
		log.WithError(err).Warn("encode import event")
		return
	}
	if err := im.Events.Append(ctx, syncx.Event{Type: syncx.TypeImportCompleted, Key: s.ID, DataJSON: string(data)}); err != nil {
		log.WithError(err).Warn("append import event")
	}
}

// Confirmer answers the two workflow questions for non-interactive or
// terminal-driven imports.
type Confirmer interface {
	ConfirmInvalid(ctx context.Context, invalid []string, validCount int) (bool, error)
	ConfirmTaxonomy(ctx context.Context, snap *taxonomy.Snapshot) (bool, error)
}

// AutoConfirm accepts every prompt.
type AutoConfirm struct{}

func (AutoConfirm) ConfirmInvalid(context.Context, []string, int) (bool, error) { return true, nil }
func (AutoConfirm) ConfirmTaxonomy(context.Context, *taxonomy.Snapshot) (bool, error) {
	return true, nil
}

// Import drives a freshly parsed session to completion, asking c at every
// pause. A declined prompt ends in ErrCancelled.
func (im *Importer) Import(ctx context.Context, s *Session, c Confirmer, progress ProgressFunc) (Result, error) {
	if s.State() == StateAwaitingInvalidConfirmation {
		st := s.Status()
		ok, err := c.ConfirmInvalid(ctx, st.Invalid, st.ValidCount)
		if err != nil {
			return Result{}, err
		}
		if err := im.ConfirmInvalid(s, ok); err != nil {
			return Result{}, err
		}
	}
	if err := im.Reconcile(ctx, s); err != nil {
		return Result{}, err
	}
	if s.State() == StateAwaitingTaxonomyConfirmation {
		ok, err := c.ConfirmTaxonomy(ctx, s.Snapshot())
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, im.DeclineTaxonomy(s)
		}
		if err := im.ConfirmTaxonomy(ctx, s); err != nil {
			var serr *taxonomy.SubjectCreateError
			if errors.As(err, &serr) {
				return Result{}, fmt.Errorf("import aborted: %w", err)
			}
			return Result{}, err
		}
	}
	return im.Run(ctx, s, progress)
}
