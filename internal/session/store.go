package session

import (
	"strconv"
	"sync"
)

// Workflow names the multi-turn conversation a session is inside.
type Workflow string

const (
	WorkflowNone            Workflow = ""
	WorkflowRegistration    Workflow = "registration"
	WorkflowProjectCreation Workflow = "project_creation"
	WorkflowProjectJoin     Workflow = "project_join"
	WorkflowProjectDeletion Workflow = "project_deletion"
	WorkflowTaskCreation    Workflow = "task_creation"
	WorkflowBotFeedback     Workflow = "bot_feedback"
	WorkflowTaskFeedback    Workflow = "task_feedback"
)

// Step is the position inside a workflow.
type Step string

// State is one user's conversation position plus the field values collected
// on earlier steps of the same workflow. It lives only in memory.
type State struct {
	Workflow Workflow
	Step     Step
	Data     map[string]string
}

func (s *State) Set(key, value string) {
	if s.Data == nil {
		s.Data = map[string]string{}
	}
	s.Data[key] = value
}

func (s *State) Get(key string) string {
	return s.Data[key]
}

func (s *State) SetInt64(key string, value int64) {
	s.Set(key, strconv.FormatInt(value, 10))
}

func (s *State) GetInt64(key string) (int64, bool) {
	v, err := strconv.ParseInt(s.Data[key], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Store keys conversation state by telegram user id. Each user's state is
// private; the store itself is safe for concurrent sessions.
type Store struct {
	mu     sync.RWMutex
	states map[int64]*State
}

func NewStore() *Store {
	return &Store{states: make(map[int64]*State)}
}

// Get returns the user's state, creating an empty one on first contact.
func (st *Store) Get(userID int64) *State {
	st.mu.RLock()
	s, ok := st.states[userID]
	st.mu.RUnlock()
	if ok {
		return s
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.states[userID]; ok {
		return s
	}
	s = &State{}
	st.states[userID] = s
	return s
}

// Begin resets the user's state to the first step of a workflow, dropping
// any previously accumulated data.
func (st *Store) Begin(userID int64, wf Workflow, step Step) *State {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := &State{Workflow: wf, Step: step}
	st.states[userID] = s
	return s
}

// Clear drops the user's workflow and accumulated data. Used on completion,
// cancellation, and abandonment.
func (st *Store) Clear(userID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.states, userID)
}
