package resolution

import (
	"encoding/json"
	"fmt"

	"github.com/lapig-ufg/pasto-legal/internal/models"
)

// Mode is the phase of the property resolution protocol.
type Mode string

const (
	ModeIdle           Mode = "IDLE"
	ModeAwaitingSingle Mode = "AWAITING_SINGLE_CONFIRMATION"
	ModeAwaitingList   Mode = "AWAITING_LIST_SELECTION"
)

// State is the per-conversation resolution state. Fields are unexported so
// that every mutation goes through the Resolver; the zero value is IDLE with
// nothing selected.
//
// Invariants:
//   - IDLE: no candidate and an empty candidate list
//   - AWAITING_SINGLE_CONFIRMATION: a candidate and an empty list
//   - AWAITING_LIST_SELECTION: no candidate and at least two listed
type State struct {
	mode          Mode
	candidate     *models.PropertyFeature
	candidateList []models.PropertyFeature
	selected      *models.PropertyFeature
}

func NewState() *State {
	return &State{mode: ModeIdle}
}

func (s *State) Mode() Mode {
	if s.mode == "" {
		return ModeIdle
	}
	return s.mode
}

// Candidate returns the feature awaiting a yes/no answer.
func (s *State) Candidate() (models.PropertyFeature, bool) {
	if s.candidate == nil {
		return models.PropertyFeature{}, false
	}
	return *s.candidate, true
}

// CandidateList returns a copy of the features awaiting a numbered choice, in
// registry order.
func (s *State) CandidateList() []models.PropertyFeature {
	if len(s.candidateList) == 0 {
		return nil
	}
	out := make([]models.PropertyFeature, len(s.candidateList))
	copy(out, s.candidateList)
	return out
}

// Selected returns the confirmed property, if any.
func (s *State) Selected() (models.PropertyFeature, bool) {
	if s.selected == nil {
		return models.PropertyFeature{}, false
	}
	return *s.selected, true
}

// Clone returns an independent copy. Features are shared since they are
// never mutated.
func (s *State) Clone() *State {
	c := &State{mode: s.Mode()}
	if s.candidate != nil {
		f := *s.candidate
		c.candidate = &f
	}
	c.candidateList = s.CandidateList()
	if s.selected != nil {
		f := *s.selected
		c.selected = &f
	}
	return c
}

func (s *State) stageSingle(f models.PropertyFeature) {
	s.mode = ModeAwaitingSingle
	s.candidate = &f
	s.candidateList = nil
}

func (s *State) stageList(fs []models.PropertyFeature) {
	s.mode = ModeAwaitingList
	s.candidate = nil
	s.candidateList = make([]models.PropertyFeature, len(fs))
	copy(s.candidateList, fs)
}

func (s *State) clearTransient() {
	s.mode = ModeIdle
	s.candidate = nil
	s.candidateList = nil
}

func (s *State) commit(f models.PropertyFeature) {
	s.clearTransient()
	s.selected = &f
}

func (s *State) validate() error {
	switch s.Mode() {
	case ModeIdle:
		if s.candidate != nil || len(s.candidateList) > 0 {
			return fmt.Errorf("idle state holds pending candidates")
		}
	case ModeAwaitingSingle:
		if s.candidate == nil {
			return fmt.Errorf("%s without a candidate", ModeAwaitingSingle)
		}
		if len(s.candidateList) > 0 {
			return fmt.Errorf("%s with a candidate list", ModeAwaitingSingle)
		}
	case ModeAwaitingList:
		if s.candidate != nil {
			return fmt.Errorf("%s with a single candidate", ModeAwaitingList)
		}
		if len(s.candidateList) < 2 {
			return fmt.Errorf("%s with %d candidates", ModeAwaitingList, len(s.candidateList))
		}
	default:
		return fmt.Errorf("unknown mode %q", s.mode)
	}
	return nil
}

type snapshot struct {
	Mode          Mode                     `json:"mode"`
	Candidate     *models.PropertyFeature  `json:"candidate,omitempty"`
	CandidateList []models.PropertyFeature `json:"candidate_list,omitempty"`
	Selected      *models.PropertyFeature  `json:"selected,omitempty"`
}

// MarshalJSON encodes the state for session stores.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshot{
		Mode:          s.Mode(),
		Candidate:     s.candidate,
		CandidateList: s.candidateList,
		Selected:      s.selected,
	})
}

// UnmarshalJSON rejects snapshots that break the mode invariants.
func (s *State) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	st := State{
		mode:          snap.Mode,
		candidate:     snap.Candidate,
		candidateList: snap.CandidateList,
		selected:      snap.Selected,
	}
	if err := st.validate(); err != nil {
		return fmt.Errorf("invalid resolution state: %w", err)
	}
	*s = st
	return nil
}
