package session_test

import (
	"sync"
	"testing"

	"taskpilot/internal/session"
)

func TestBeginResetsAccumulatedData(t *testing.T) {
	st := session.NewStore()
	s := st.Begin(1, session.WorkflowRegistration, "name")
	s.Set("name", "Bea")

	s = st.Begin(1, session.WorkflowProjectCreation, "project_name")
	if s.Get("name") != "" {
		t.Fatalf("data survived Begin: %q", s.Get("name"))
	}
	if s.Workflow != session.WorkflowProjectCreation {
		t.Fatalf("workflow = %s", s.Workflow)
	}
}

func TestClearReturnsToIdle(t *testing.T) {
	st := session.NewStore()
	st.Begin(1, session.WorkflowRegistration, "name")
	st.Clear(1)
	if got := st.Get(1); got.Workflow != session.WorkflowNone {
		t.Fatalf("workflow after clear = %s", got.Workflow)
	}
}

func TestInt64RoundTrip(t *testing.T) {
	s := &session.State{}
	s.SetInt64("project_id", 42)
	v, ok := s.GetInt64("project_id")
	if !ok || v != 42 {
		t.Fatalf("got %d, %v", v, ok)
	}
	if _, ok := s.GetInt64("missing"); ok {
		t.Fatal("missing key reported present")
	}
}

func TestConcurrentUsersAreIndependent(t *testing.T) {
	st := session.NewStore()
	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s := st.Begin(id, session.WorkflowRegistration, "name")
			s.SetInt64("id", id)
		}(i)
	}
	wg.Wait()
	for i := int64(1); i <= 50; i++ {
		v, ok := st.Get(i).GetInt64("id")
		if !ok || v != i {
			t.Fatalf("user %d state = %d, %v", i, v, ok)
		}
	}
}
