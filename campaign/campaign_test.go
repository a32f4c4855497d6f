package campaign

import (
	"context"
	"sync"
	"testing"

	"github.com/geoceiver/cddis-archiver/entity"
	"github.com/geoceiver/cddis-archiver/entitystore"
	"github.com/geoceiver/cddis-archiver/week"
)

type fakeClock struct {
	seconds float64
	week    uint
}

func (c fakeClock) CurrentSeconds() float64 { return c.seconds }
func (c fakeClock) CurrentWeek() uint       { return c.week }

type fakeWeekRunner struct {
	mu      sync.Mutex
	ran     []week.Request
	failFor map[uint]bool
}

func (f *fakeWeekRunner) Run(ctx context.Context, req week.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, req)
	if f.failFor != nil && f.failFor[req.Week] {
		return errTestWeekFailed
	}
	return nil
}

var errTestWeekFailed = &weekFailure{}

type weekFailure struct{}

func (e *weekFailure) Error() string { return "simulated week failure" }

func TestRunEnumeratesRecentWeeksDescending(t *testing.T) {
	weeks := &fakeWeekRunner{}
	entities := entitystore.NewMemoryStore()
	w := NewWorkflow(entities, weeks, fakeClock{week: 2360}, entity.NewDispatcher())

	req := Request{RequestID: "camp1", Weeks: WeekSelector{Kind: RecentWeeks, N: 3}}
	if err := w.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	weeks.mu.Lock()
	defer weeks.mu.Unlock()
	want := []uint{2360, 2359, 2358, 2357}
	if len(weeks.ran) != len(want) {
		t.Fatalf("got %d week runs, want %d", len(weeks.ran), len(want))
	}
	for i, wk := range want {
		if weeks.ran[i].Week != wk {
			t.Errorf("weeks.ran[%d].Week = %d, want %d", i, weeks.ran[i].Week, wk)
		}
	}

	status, err := w.GetStatus(context.Background(), req.RequestID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.WeeksCompleted != len(want) {
		t.Errorf("WeeksCompleted = %d, want %d", status.WeeksCompleted, len(want))
	}
	if status.TimeCompleted == nil {
		t.Error("expected TimeCompleted to be set")
	}
}

func TestRunTracksFailedWeeks(t *testing.T) {
	weeks := &fakeWeekRunner{failFor: map[uint]bool{2359: true}}
	entities := entitystore.NewMemoryStore()
	w := NewWorkflow(entities, weeks, fakeClock{week: 2360}, entity.NewDispatcher())

	req := Request{RequestID: "camp2", Weeks: WeekSelector{Kind: RecentWeeks, N: 1}}
	if err := w.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	status, err := w.GetStatus(context.Background(), req.RequestID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.WeeksCompleted != 1 {
		t.Errorf("WeeksCompleted = %d, want 1", status.WeeksCompleted)
	}
	if len(status.WeeksFailed) != 1 || status.WeeksFailed[0] != 2359 {
		t.Errorf("WeeksFailed = %v, want [2359]", status.WeeksFailed)
	}
}

func TestEnumerateWeeksAllWeeks(t *testing.T) {
	weeks := enumerateWeeks(WeekSelector{Kind: AllWeeks}, MinWeek+2)
	want := []uint{MinWeek + 2, MinWeek + 1, MinWeek}
	if len(weeks) != len(want) {
		t.Fatalf("got %v, want %v", weeks, want)
	}
	for i := range want {
		if weeks[i] != want[i] {
			t.Errorf("weeks[%d] = %d, want %d", i, weeks[i], want[i])
		}
	}
}

func TestEnumerateWeeksList(t *testing.T) {
	weeks := enumerateWeeks(WeekSelector{Kind: WeeksList, Weeks: []uint{2300, 2305, 2301}}, 2360)
	want := []uint{2305, 2301, 2300}
	if len(weeks) != len(want) {
		t.Fatalf("got %v, want %v", weeks, want)
	}
	for i := range want {
		if weeks[i] != want[i] {
			t.Errorf("weeks[%d] = %d, want %d", i, weeks[i], want[i])
		}
	}
}

func TestGetStatusNotFound(t *testing.T) {
	w := NewWorkflow(entitystore.NewMemoryStore(), &fakeWeekRunner{}, fakeClock{}, entity.NewDispatcher())
	_, err := w.GetStatus(context.Background(), "missing")
	if err != ErrStatusNotFound {
		t.Errorf("GetStatus() error = %v, want ErrStatusNotFound", err)
	}
}
