package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"hero-arena/internal/domain"

	"github.com/rs/zerolog"
)

type memStatusStore struct {
	mu       sync.Mutex
	statuses map[string]domain.MmrStatus
	history  []domain.MmrHistory
	saveErr  error
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{statuses: make(map[string]domain.MmrStatus)}
}

func (s *memStatusStore) Get(ctx context.Context, userID string) (*domain.MmrStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[userID]
	if !ok {
		return nil, nil
	}
	return &status, nil
}

func (s *memStatusStore) Applied(ctx context.Context, userID, gameID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		if h.UserID == userID && h.GameID == gameID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStatusStore) Save(ctx context.Context, status domain.MmrStatus, hist domain.MmrHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.statuses[status.UserID] = status
	s.history = append(s.history, hist)
	return nil
}

func (s *memStatusStore) HistoryFor(ctx context.Context, userID string, limit int) ([]domain.MmrHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MmrHistory
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if s.history[i].UserID == userID {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}

// stubModel maps the performance value straight to a delta, so concurrent
// update tests can assert exact final ratings regardless of arrival order.
type stubModel struct {
	seed float64
}

func (m stubModel) Seed() float64 { return m.seed }

func (m stubModel) ComputeDelta(prior, performance float64) (float64, error) {
	if performance < 0 || performance > 1 {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidPerformance, performance)
	}
	return performance * 10, nil
}

func TestStatisticsApplySequential(t *testing.T) {
	store := newMemStatusStore()
	svc := NewStatisticsService(store, stubModel{seed: 1000}, zerolog.Nop())

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := svc.Apply(context.Background(), "u1", fmt.Sprintf("g%d", i), 0.5); err != nil {
			t.Fatalf("apply %d failed: %v", i, err)
		}
	}

	status, err := svc.Status(context.Background(), "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.GamesPlayed != n {
		t.Fatalf("expected %d games played, got %d", n, status.GamesPlayed)
	}
	if want := 1000 + float64(n)*5; status.Rating != want {
		t.Fatalf("expected rating %v, got %v", want, status.Rating)
	}
	if len(store.history) != n {
		t.Fatalf("expected %d history rows, got %d", n, len(store.history))
	}
}

func TestStatisticsApplyConcurrentNoLostUpdate(t *testing.T) {
	store := newMemStatusStore()
	svc := NewStatisticsService(store, stubModel{seed: 1000}, zerolog.Nop())

	// Deterministic deltas: perf 0.3 -> +3, perf 0.7 -> +7.
	perfs := []float64{0.3, 0.7}

	var wg sync.WaitGroup
	for i, perf := range perfs {
		wg.Add(1)
		go func(gameID string, p float64) {
			defer wg.Done()
			if _, err := svc.Apply(context.Background(), "u1", gameID, p); err != nil {
				t.Errorf("apply failed: %v", err)
			}
		}(fmt.Sprintf("g%d", i), perf)
	}
	wg.Wait()

	status, err := svc.Status(context.Background(), "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if want := 1000.0 + 3 + 7; status.Rating != want {
		t.Fatalf("lost update: expected rating %v, got %v", want, status.Rating)
	}
	if status.GamesPlayed != 2 {
		t.Fatalf("expected 2 games played, got %d", status.GamesPlayed)
	}
}

func TestStatisticsApplySameGameTwice(t *testing.T) {
	store := newMemStatusStore()
	svc := NewStatisticsService(store, stubModel{seed: 1000}, zerolog.Nop())

	first, err := svc.Apply(context.Background(), "u1", "g1", 0.5)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	again, err := svc.Apply(context.Background(), "u1", "g1", 0.5)
	if err != nil {
		t.Fatalf("repeated apply failed: %v", err)
	}
	if again.Rating != first.Rating || again.GamesPlayed != first.GamesPlayed {
		t.Fatalf("repeated apply mutated state: %+v vs %+v", again, first)
	}

	status, err := svc.Status(context.Background(), "u1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Rating != 1005 || status.GamesPlayed != 1 {
		t.Fatalf("game folded twice: %+v", status)
	}
	if len(store.history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(store.history))
	}
}

func TestStatisticsStatusSeedsUnknownUser(t *testing.T) {
	svc := NewStatisticsService(newMemStatusStore(), stubModel{seed: 1000}, zerolog.Nop())

	status, err := svc.Status(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Rating != 1000 || status.GamesPlayed != 0 {
		t.Fatalf("expected seed status, got %+v", status)
	}

	// Read-only queries are idempotent.
	again, err := svc.Status(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if again != status {
		t.Fatalf("repeated status differs: %+v vs %+v", again, status)
	}
}

func TestStatisticsApplyRejectsBadPerformance(t *testing.T) {
	store := newMemStatusStore()
	svc := NewStatisticsService(store, stubModel{seed: 1000}, zerolog.Nop())

	if _, err := svc.Apply(context.Background(), "u1", "g1", 2.0); !errors.Is(err, domain.ErrInvalidPerformance) {
		t.Fatalf("expected ErrInvalidPerformance, got %v", err)
	}
	if len(store.statuses) != 0 || len(store.history) != 0 {
		t.Fatal("state mutated on rejected performance value")
	}
}

func TestStatisticsApplyPropagatesSaveFailure(t *testing.T) {
	store := newMemStatusStore()
	store.saveErr = fmt.Errorf("%w: disk gone", domain.ErrPersistence)
	svc := NewStatisticsService(store, stubModel{seed: 1000}, zerolog.Nop())

	if _, err := svc.Apply(context.Background(), "u1", "g1", 0.5); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}
