package taxonomy

import "sort"

// Snapshot is the reconciliation working set of one import run. It is
// threaded explicitly through every reconciler call and discarded after the
// run; nothing in it is shared between imports.
type Snapshot struct {
	// SubjectIDs maps Normalize(subject) to the catalog id.
	SubjectIDs map[string]string `json:"subjectIds"`
	// SubjectNames maps Normalize(subject) to the catalog's own spelling.
	SubjectNames map[string]string `json:"subjectNames"`
	// KnowledgePointIDs maps "Normalize(subject):Normalize(point)" to the catalog id.
	KnowledgePointIDs map[string]string `json:"knowledgePointIds"`
	// Points lists the known points per Normalize(subject) in catalog order.
	Points map[string][]KnowledgePoint `json:"-"`

	MissingSubjects        []string            `json:"missingSubjects"`
	MissingKnowledgePoints map[string][]string `json:"missingKnowledgePoints"`

	// Uncategorized caches the fallback point id per Normalize(subject).
	Uncategorized map[string]string `json:"-"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		SubjectIDs:             map[string]string{},
		SubjectNames:           map[string]string{},
		KnowledgePointIDs:      map[string]string{},
		Points:                 map[string][]KnowledgePoint{},
		MissingKnowledgePoints: map[string][]string{},
		Uncategorized:          map[string]string{},
	}
}

// HasMissing reports whether provisioning has anything to do.
func (s *Snapshot) HasMissing() bool {
	if len(s.MissingSubjects) > 0 {
		return true
	}
	for _, names := range s.MissingKnowledgePoints {
		if len(names) > 0 {
			return true
		}
	}
	return false
}

// SubjectID resolves a raw subject name.
func (s *Snapshot) SubjectID(name string) (string, bool) {
	id, ok := s.SubjectIDs[Normalize(name)]
	return id, ok && id != ""
}

// KnowledgePointID resolves a raw (subject, point) pair.
func (s *Snapshot) KnowledgePointID(subject, point string) (string, bool) {
	id, ok := s.KnowledgePointIDs[pointKey(subject, point)]
	return id, ok && id != ""
}

func (s *Snapshot) putSubject(sub Subject) {
	n := Normalize(sub.Name)
	s.SubjectIDs[n] = sub.ID
	if _, ok := s.SubjectNames[n]; !ok {
		s.SubjectNames[n] = sub.Name
	}
}

// putPoints records every point of a subject, keeping catalog order and
// skipping points that are already known.
func (s *Snapshot) putPoints(subject string, kps []KnowledgePoint) {
	n := Normalize(subject)
	for _, kp := range kps {
		key := n + ":" + Normalize(kp.Name)
		if _, ok := s.KnowledgePointIDs[key]; ok {
			continue
		}
		s.KnowledgePointIDs[key] = kp.ID
		s.Points[n] = append(s.Points[n], kp)
	}
}

func (s *Snapshot) addMissingSubject(name string) {
	n := Normalize(name)
	for _, have := range s.MissingSubjects {
		if Normalize(have) == n {
			return
		}
	}
	s.MissingSubjects = append(s.MissingSubjects, name)
}

func (s *Snapshot) addMissingPoint(subject, point string) {
	key := subject
	n := Normalize(subject)
	for have := range s.MissingKnowledgePoints {
		if Normalize(have) == n {
			key = have
			break
		}
	}
	pn := Normalize(point)
	for _, have := range s.MissingKnowledgePoints[key] {
		if Normalize(have) == pn {
			return
		}
	}
	s.MissingKnowledgePoints[key] = append(s.MissingKnowledgePoints[key], point)
}

func (s *Snapshot) missingPointSubjects() []string {
	out := make([]string, 0, len(s.MissingKnowledgePoints))
	for k := range s.MissingKnowledgePoints {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
