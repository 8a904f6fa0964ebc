package importer

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

type State string

const (
	StateIdle                         State = "IDLE"
	StateParsed                       State = "PARSED"
	StateAwaitingInvalidConfirmation  State = "AWAITING_INVALID_CONFIRMATION"
	StateAwaitingTaxonomyConfirmation State = "AWAITING_TAXONOMY_CONFIRMATION"
	StateImporting                    State = "IMPORTING"
	StateCompleted                    State = "COMPLETED"
	StateCancelled                    State = "CANCELLED"
	StateFailed                       State = "FAILED"
)

var (
	ErrInvalidState = errors.New("operation not allowed in current import state")
	ErrCancelled    = errors.New("import cancelled")
)

// Result is the terminal report of a run.
type Result struct {
	SuccessCount int      `json:"successCount"`
	FailedCount  int      `json:"failedCount"`
	Errors       []string `json:"errors"`
}

// Session is one import run. Workflow steps are serialised by step; the
// exported fields are guarded by mu so Status may be called concurrently.
type Session struct {
	ID        string
	Source    string
	Owner     string // JWT subject that started the session, if any
	CreatedAt time.Time

	step sync.Mutex
	mu   sync.RWMutex

	state      State
	parsed     int
	valid      []question.ParsedQuestion
	invalid    []string
	duplicates []string
	snapshot   *taxonomy.Snapshot
	confirmed  bool
	provision  taxonomy.ProvisionReport
	progress   int
	result     *Result
	err        string
}

func newSession(source string) *Session {
	return &Session{ID: uuid.NewString(), Source: source, CreatedAt: time.Now(), state: StateIdle}
}

func (s *Session) set(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Valid returns the questions that will be imported.
func (s *Session) Valid() []question.ParsedQuestion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]question.ParsedQuestion(nil), s.valid...)
}

// Snapshot is nil until Reconcile ran.
func (s *Session) Snapshot() *taxonomy.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Session) Result() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Status is the JSON view of a session.
type Status struct {
	ID                     string              `json:"id"`
	Source                 string              `json:"source"`
	Owner                  string              `json:"owner,omitempty"`
	State                  State               `json:"state"`
	ParsedCount            int                 `json:"parsedCount"`
	ValidCount             int                 `json:"validCount"`
	Invalid                []string            `json:"invalid"`
	Duplicates             []string            `json:"duplicates"`
	MissingSubjects        []string            `json:"missingSubjects,omitempty"`
	MissingKnowledgePoints map[string][]string `json:"missingKnowledgePoints,omitempty"`
	CreatedSubjects        []string            `json:"createdSubjects,omitempty"`
	CreatedKnowledgePoints []string            `json:"createdKnowledgePoints,omitempty"`
	ProvisionFailures      []string            `json:"provisionFailures,omitempty"`
	Progress               int                 `json:"progress"`
	Result                 *Result             `json:"result,omitempty"`
	Error                  string              `json:"error,omitempty"`
	CreatedAt              time.Time           `json:"createdAt"`
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		ID:          s.ID,
		Source:      s.Source,
		Owner:       s.Owner,
		State:       s.state,
		ParsedCount: s.parsed,
		ValidCount:  len(s.valid),
		Invalid:     append([]string{}, s.invalid...),
		Duplicates:  append([]string{}, s.duplicates...),
		Progress:    s.progress,
		Result:      s.result,
		Error:       s.err,
		CreatedAt:   s.CreatedAt,
	}
	if s.snapshot != nil {
		st.MissingSubjects = append([]string(nil), s.snapshot.MissingSubjects...)
		if len(s.snapshot.MissingKnowledgePoints) > 0 {
			st.MissingKnowledgePoints = make(map[string][]string, len(s.snapshot.MissingKnowledgePoints))
			for k, v := range s.snapshot.MissingKnowledgePoints {
				st.MissingKnowledgePoints[k] = append([]string(nil), v...)
			}
		}
	}
	st.CreatedSubjects = s.provision.CreatedSubjects
	st.CreatedKnowledgePoints = s.provision.CreatedKnowledgePoints
	st.ProvisionFailures = s.provision.FailureMessages()
	return st
}

// Registry keeps the sessions of the HTTP workflow in memory.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Prune drops sessions created before cutoff and returns how many went.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}
