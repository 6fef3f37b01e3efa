package dispatch

import (
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/solatis/envboot/internal/types"
)

// ActionResult records one rule's outcome within one pass.
type ActionResult struct {
	RuleID   types.RuleID
	Phase    types.Phase
	Outcome  types.Outcome
	Reason   string
	Err      error
	Attempts int
	At       time.Time
}

// MarshalJSON renders Err as a string for session log output.
func (r ActionResult) MarshalJSON() ([]byte, error) {
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}
	return json.Marshal(struct {
		RuleID   types.RuleID  `json:"rule_id"`
		Phase    types.Phase   `json:"phase"`
		Outcome  types.Outcome `json:"outcome"`
		Reason   string        `json:"reason,omitempty"`
		Error    string        `json:"error,omitempty"`
		Attempts int           `json:"attempts,omitempty"`
		At       time.Time     `json:"at"`
	}{r.RuleID, r.Phase, r.Outcome, r.Reason, errText, r.Attempts, r.At})
}

// Summary aggregates the results of one pass.
type Summary struct {
	Phase   types.Phase
	Results []ActionResult
	Applied int
	Skipped int
	Failed  int
}

// Add appends r and updates the counters.
func (s *Summary) Add(r ActionResult) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case types.OutcomeApplied:
		s.Applied++
	case types.OutcomeFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}

// Session is the per-session state the dispatcher owns: applied rule ids,
// preferences written, flags enabled, and the append-only result log.
// Predicates observe it through rules.SessionView.
type Session struct {
	id types.SessionID

	mu      sync.RWMutex
	applied map[types.RuleID]bool
	prefs   map[string]string
	flags   map[string]bool
	log     []ActionResult
}

// NewSession starts an empty session.
func NewSession(id types.SessionID) *Session {
	return &Session{
		id:      id,
		applied: make(map[types.RuleID]bool),
		prefs:   make(map[string]string),
		flags:   make(map[string]bool),
	}
}

func (s *Session) ID() types.SessionID { return s.id }

func (s *Session) Applied(id types.RuleID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied[id]
}

func (s *Session) AppliedIDs() []types.RuleID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Collect(maps.Keys(s.applied))
	slices.Sort(ids)
	return ids
}

func (s *Session) Preference(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.prefs[key]
	return v, ok
}

func (s *Session) Preferences() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.prefs)
}

func (s *Session) Flags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flags := slices.Collect(maps.Keys(s.flags))
	slices.Sort(flags)
	return flags
}

func (s *Session) markApplied(id types.RuleID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[id] = true
}

func (s *Session) setPreference(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = value
}

func (s *Session) enableFlag(flag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[flag] = true
}

// Record appends r to the session log.
func (s *Session) Record(r ActionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, r)
}

// Log returns a copy of the session log in append order.
func (s *Session) Log() []ActionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.log)
}
