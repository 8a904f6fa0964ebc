package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/width"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
)

var ErrSubjectUnresolved = errors.New("subject not resolved")

// SubjectCreateError aborts a whole import: every later step needs the id.
type SubjectCreateError struct {
	Name string
	Err  error
}

func (e *SubjectCreateError) Error() string {
	return fmt.Sprintf("create subject %q: %v", e.Name, e.Err)
}
func (e *SubjectCreateError) Unwrap() error { return e.Err }

// PointCreateError is reported but never aborts provisioning.
type PointCreateError struct {
	Subject string
	Name    string
	Err     error
}

func (e *PointCreateError) Error() string {
	return fmt.Sprintf("create knowledge point %q for subject %q: %v", e.Name, e.Subject, e.Err)
}
func (e *PointCreateError) Unwrap() error { return e.Err }

type ProvisionReport struct {
	CreatedSubjects        []string `json:"createdSubjects"`
	CreatedKnowledgePoints []string `json:"createdKnowledgePoints"`
	Failures               []error  `json:"-"`
}

// FailureMessages renders Failures for JSON and terminal output.
func (r ProvisionReport) FailureMessages() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Error())
	}
	return out
}

const importDescription = "created by question import"

type Reconciler struct {
	catalog       Catalog
	log           logrus.FieldLogger
	uncategorized string
}

func NewReconciler(c Catalog, log logrus.FieldLogger, uncategorized string) *Reconciler {
	if uncategorized == "" {
		uncategorized = "未分类"
	}
	return &Reconciler{catalog: c, log: log, uncategorized: uncategorized}
}

// ComputeMissing looks up every subject and (subject, point) pair referenced
// by qs and records what the catalog lacks. Ids of existing nodes are cached
// in the returned snapshot.
func (r *Reconciler) ComputeMissing(ctx context.Context, qs []question.ParsedQuestion) (*Snapshot, error) {
	snap := NewSnapshot()
	subjects, err := r.catalog.ListSubjects(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	byNorm := make(map[string]Subject, len(subjects))
	for _, s := range subjects {
		byNorm[Normalize(s.Name)] = s
	}

	visited := map[string]bool{}
	for _, q := range qs {
		subject := strings.TrimSpace(q.Subject)
		if subject == "" {
			continue
		}
		n := Normalize(subject)
		if !visited[n] {
			visited[n] = true
			if s, ok := byNorm[n]; ok {
				snap.putSubject(s)
				kps, err := r.catalog.ListKnowledgePoints(ctx, s.Name)
				if err != nil {
					return nil, fmt.Errorf("list knowledge points of %q: %w", s.Name, err)
				}
				snap.putPoints(s.Name, kps)
			} else {
				snap.addMissingSubject(subject)
			}
		}
		for _, name := range SplitPoints(q.KnowledgePoint) {
			if _, ok := snap.KnowledgePointIDs[pointKey(subject, name)]; !ok {
				snap.addMissingPoint(subject, name)
			}
		}
	}
	return snap, nil
}

// ProvisionMissing creates what ComputeMissing found absent. The catalog is
// re-read before creating so nodes made by a concurrent import are reused.
func (r *Reconciler) ProvisionMissing(ctx context.Context, snap *Snapshot) (ProvisionReport, error) {
	var report ProvisionReport

	if len(snap.MissingSubjects) > 0 {
		subjects, err := r.catalog.ListSubjects(ctx, true)
		if err != nil {
			return report, fmt.Errorf("re-check subjects: %w", err)
		}
		byNorm := make(map[string]Subject, len(subjects))
		for _, s := range subjects {
			byNorm[Normalize(s.Name)] = s
		}
		for _, name := range snap.MissingSubjects {
			if s, ok := byNorm[Normalize(name)]; ok {
				r.log.WithField("subject", name).Info("subject appeared since detection; reusing it")
				snap.putSubject(s)
				continue
			}
			s, err := r.catalog.CreateSubject(ctx, NewSubject{
				Name:        name,
				Code:        subjectCode(name),
				Description: importDescription,
				SortOrder:   0,
				IsActive:    true,
			})
			if err != nil {
				return report, &SubjectCreateError{Name: name, Err: err}
			}
			if s.Name == "" {
				s.Name = name
			}
			snap.putSubject(s)
			report.CreatedSubjects = append(report.CreatedSubjects, name)
			r.log.WithFields(logrus.Fields{"subject": name, "id": s.ID}).Info("subject created")
		}
		snap.MissingSubjects = nil
	}

	for _, subject := range snap.missingPointSubjects() {
		names := snap.MissingKnowledgePoints[subject]
		n := Normalize(subject)
		sid, ok := snap.SubjectIDs[n]
		if !ok {
			for _, name := range names {
				report.Failures = append(report.Failures, &PointCreateError{Subject: subject, Name: name, Err: ErrSubjectUnresolved})
			}
			continue
		}
		catalogName := snap.SubjectNames[n]
		if catalogName == "" {
			catalogName = subject
		}

		existing, err := r.catalog.ListKnowledgePoints(ctx, catalogName)
		if err != nil {
			for _, name := range names {
				report.Failures = append(report.Failures, &PointCreateError{Subject: subject, Name: name, Err: err})
			}
			continue
		}
		snap.putPoints(catalogName, existing)

		var still []string
		for _, name := range names {
			if _, ok := snap.KnowledgePointIDs[pointKey(subject, name)]; ok {
				continue
			}
			kp, err := r.catalog.CreateKnowledgePoint(ctx, NewKnowledgePoint{
				Name:            name,
				Description:     importDescription,
				Subject:         catalogName,
				SubjectID:       sid,
				DifficultyLevel: string(question.Medium),
				Status:          "ACTIVE",
				SortOrder:       0,
				IsSystem:        false,
			})
			if err != nil {
				perr := &PointCreateError{Subject: subject, Name: name, Err: err}
				r.log.WithError(err).WithFields(logrus.Fields{"subject": subject, "knowledge_point": name}).
					Warn("knowledge point creation failed")
				report.Failures = append(report.Failures, perr)
				still = append(still, name)
				continue
			}
			if kp.Name == "" {
				kp.Name = name
			}
			snap.putPoints(catalogName, []KnowledgePoint{kp})
			report.CreatedKnowledgePoints = append(report.CreatedKnowledgePoints, subject+"/"+name)
		}
		if len(still) > 0 {
			snap.MissingKnowledgePoints[subject] = still
		} else {
			delete(snap.MissingKnowledgePoints, subject)
		}
	}
	return report, nil
}

// ResolveKnowledgePoints returns the ids for q's knowledge points, in the
// order they are listed. Without any listed match the point is inferred
// from the question text, and failing that the subject's uncategorized node
// is used (created once per run if needed).
func (r *Reconciler) ResolveKnowledgePoints(ctx context.Context, q question.ParsedQuestion, snap *Snapshot) ([]string, error) {
	var ids []string
	seen := map[string]bool{}
	for _, name := range SplitPoints(q.KnowledgePoint) {
		id, ok := snap.KnowledgePointID(q.Subject, name)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		return ids, nil
	}

	if kp, ok := r.Infer(snap, q.Subject, q.Title, q.Explanation); ok {
		r.log.WithFields(logrus.Fields{"title": q.Title, "knowledge_point": kp.Name}).
			Debug("knowledge point inferred from question text")
		return []string{kp.ID}, nil
	}

	id, err := r.uncategorizedID(ctx, q.Subject, snap)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

// Infer picks the longest known point of subject whose normalized name
// occurs in one of texts. Each text is searched on its own, so a name never
// matches across two of them. On equal length the earlier point in catalog
// order wins.
func (r *Reconciler) Infer(snap *Snapshot, subject string, texts ...string) (KnowledgePoint, bool) {
	hays := make([]string, 0, len(texts))
	for _, t := range texts {
		if n := Normalize(t); n != "" {
			hays = append(hays, n)
		}
	}
	unc := Normalize(r.uncategorized)
	var (
		best    KnowledgePoint
		bestLen int
	)
	for _, kp := range snap.Points[Normalize(subject)] {
		k := Normalize(kp.Name)
		if k == "" || k == unc {
			continue
		}
		if l := len([]rune(k)); l > bestLen && containsAny(hays, k) {
			best, bestLen = kp, l
		}
	}
	return best, bestLen > 0
}

func containsAny(hays []string, needle string) bool {
	for _, h := range hays {
		if strings.Contains(h, needle) {
			return true
		}
	}
	return false
}

func (r *Reconciler) uncategorizedID(ctx context.Context, subject string, snap *Snapshot) (string, error) {
	n := Normalize(subject)
	if id, ok := snap.Uncategorized[n]; ok {
		return id, nil
	}
	sid, ok := snap.SubjectIDs[n]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSubjectUnresolved, subject)
	}
	key := n + ":" + Normalize(r.uncategorized)
	if id, ok := snap.KnowledgePointIDs[key]; ok {
		snap.Uncategorized[n] = id
		return id, nil
	}

	catalogName := snap.SubjectNames[n]
	if catalogName == "" {
		catalogName = subject
	}
	kps, err := r.catalog.ListKnowledgePoints(ctx, catalogName)
	if err != nil {
		return "", fmt.Errorf("list knowledge points of %q: %w", catalogName, err)
	}
	snap.putPoints(catalogName, kps)
	if id, ok := snap.KnowledgePointIDs[key]; ok {
		snap.Uncategorized[n] = id
		return id, nil
	}

	kp, err := r.catalog.CreateKnowledgePoint(ctx, NewKnowledgePoint{
		Name:            r.uncategorized,
		Description:     "fallback for imported questions without a matching knowledge point",
		Subject:         catalogName,
		SubjectID:       sid,
		DifficultyLevel: string(question.Medium),
		Status:          "ACTIVE",
		SortOrder:       9999,
		IsSystem:        true,
	})
	if err != nil {
		return "", fmt.Errorf("create %q for subject %q: %w", r.uncategorized, subject, err)
	}
	snap.KnowledgePointIDs[key] = kp.ID
	snap.Uncategorized[n] = kp.ID
	r.log.WithFields(logrus.Fields{"subject": subject, "id": kp.ID}).Info("uncategorized knowledge point created")
	return kp.ID, nil
}

// subjectCode derives a catalog code from the subject name, e.g.
// "Java 程序设计" -> "JAVA_3F9A1C".
func subjectCode(name string) string {
	var b strings.Builder
	for _, r := range width.Narrow.String(name) {
		if b.Len() >= 16 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	base := b.String()
	if base == "" {
		base = "SUBJ"
	}
	return base + "_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}
