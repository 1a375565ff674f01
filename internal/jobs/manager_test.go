package jobs

import (
	"sync"
	"testing"

	"media-animator/internal/domain"
)

// TestManagerLifecycle verifies Idle -> Converting -> Idle.
func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if m.IsConverting() {
		t.Fatal("new manager should be idle")
	}

	status, err := m.Begin("batch-1", 3, "/out")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !status.IsConverting || status.State != domain.BatchStateConverting {
		t.Fatalf("status after begin = %+v", status)
	}
	if status.TotalFiles != 3 || status.CompletedFiles != 0 || status.Progress != 0 {
		t.Fatalf("counters not reset: %+v", status)
	}

	if _, err := m.Update(func(s *domain.ConversionStatus) {
		s.CompletedFiles = 1
		s.Progress = Percent(1, s.TotalFiles)
		s.CurrentFile = "a.mp4"
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	done, err := m.Finish("all done")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if done.IsConverting || done.State != domain.BatchStateIdle {
		t.Fatalf("status after finish = %+v", done)
	}
	if done.Message != "all done" || done.CompletedFiles != 1 || done.Progress != 33 {
		t.Fatalf("terminal status = %+v", done)
	}
	if done.FinishedAt.IsZero() {
		t.Fatal("expected finished timestamp")
	}
}

// TestManagerRejectsSecondBatch checks that only one batch runs at a time.
func TestManagerRejectsSecondBatch(t *testing.T) {
	m := NewManager()
	if _, err := m.Begin("batch-1", 1, "/out"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Begin("batch-2", 1, "/out"); err != ErrAlreadyConverting {
		t.Fatalf("second begin error = %v, want %v", err, ErrAlreadyConverting)
	}
	if got := m.Current().BatchID; got != "batch-1" {
		t.Fatalf("batch id = %q, want batch-1", got)
	}
}

// TestManagerRejectsUpdatesWhenIdle checks idle state guards.
func TestManagerRejectsUpdatesWhenIdle(t *testing.T) {
	m := NewManager()
	if _, err := m.Update(func(*domain.ConversionStatus) {}); err != ErrNotConverting {
		t.Fatalf("update error = %v, want %v", err, ErrNotConverting)
	}
	if _, err := m.Finish("x"); err != ErrNotConverting {
		t.Fatalf("finish error = %v, want %v", err, ErrNotConverting)
	}
}

// TestManagerCurrentReturnsCopy verifies readers cannot mutate live outcomes.
func TestManagerCurrentReturnsCopy(t *testing.T) {
	m := NewManager()
	if _, err := m.Begin("batch-1", 1, "/out"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Update(func(s *domain.ConversionStatus) {
		s.Outcomes = append(s.Outcomes, domain.FileOutcome{Source: "a.mp4"})
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	snapshot := m.Current()
	snapshot.Outcomes[0].Source = "mutated"
	if got := m.Current().Outcomes[0].Source; got != "a.mp4" {
		t.Fatalf("outcome source = %q, want a.mp4", got)
	}
}

// TestManagerUpdatesAreNotTorn checks readers always see paired fields together.
func TestManagerUpdatesAreNotTorn(t *testing.T) {
	m := NewManager()
	if _, err := m.Begin("batch-1", 1000, "/out"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			_, _ = m.Update(func(s *domain.ConversionStatus) {
				s.CompletedFiles = i
				s.Progress = Percent(i, s.TotalFiles)
			})
		}
	}()

	for i := 0; i < 1000; i++ {
		s := m.Current()
		if s.Progress != Percent(s.CompletedFiles, s.TotalFiles) {
			t.Fatalf("torn read: completed=%d progress=%d", s.CompletedFiles, s.Progress)
		}
	}
	wg.Wait()
}

// TestPercent checks rounding and bounds.
func TestPercent(t *testing.T) {
	cases := []struct {
		done, total, want int
	}{
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 0, 0},
		{5, 4, 100},
	}
	for _, tc := range cases {
		if got := Percent(tc.done, tc.total); got != tc.want {
			t.Fatalf("Percent(%d, %d) = %d, want %d", tc.done, tc.total, got, tc.want)
		}
	}
}
