// Package campaign implements the Campaign Workflow specified in section 4.1
// of the design specification: enumerate the weeks to process, sequence Week
// Workflow invocations, and optionally re-schedule itself after a delay.
package campaign

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/geoceiver/cddis-archiver/entity"
	"github.com/geoceiver/cddis-archiver/week"
)

// MinWeek is MIN_WEEK from section 6.5.
const MinWeek = 2238

// DefaultLookback is DEFAULT_LOOKBACK from section 6.5.
const DefaultLookback = 12

// SelectorKind enumerates the WeekSelector variants from section 3.
type SelectorKind int

const (
	// AllWeeks selects [MIN_WEEK .. current_week] inclusive.
	AllWeeks SelectorKind = iota
	// RecentWeeks selects [current_week-n .. current_week] inclusive.
	RecentWeeks
	// WeeksList selects an explicit set of weeks.
	WeeksList
)

// WeekSelector is the WeekSelector shape from section 3. Exactly one of N
// (for RecentWeeks) or Weeks (for WeeksList) is meaningful, chosen by Kind.
type WeekSelector struct {
	Kind  SelectorKind `json:"kind"`
	N     uint         `json:"n,omitempty"`
	Weeks []uint       `json:"weeks,omitempty"`
}

// DefaultSelector is RecentWeeks(12), the spec's default (section 3).
func DefaultSelector() WeekSelector {
	return WeekSelector{Kind: RecentWeeks, N: DefaultLookback}
}

// Request is the CampaignRequest shape from section 3.
type Request struct {
	RequestID    string        `json:"requestID"`
	Weeks        WeekSelector  `json:"weeks"`
	Parallelism  uint          `json:"parallelism"`
	ProcessFiles bool          `json:"processFiles"`
	Recurring    time.Duration `json:"recurring,omitempty"`
}

// Key returns the canonical entity key for a Request, its request_id.
func (r Request) Key() string { return r.RequestID }

// Status is the persisted CampaignStatus from section 3.
type Status struct {
	Request        Request    `json:"request"`
	WeeksCompleted int        `json:"weeksCompleted"`
	WeeksFailed    []uint     `json:"weeksFailed"`
	TimeStarted    time.Time  `json:"timeStarted"`
	TimeCompleted  *time.Time `json:"timeCompleted,omitempty"`
	LastUpdate     *time.Time `json:"lastUpdate,omitempty"`
}

// ErrStatusNotFound is returned by GetStatus when no status has ever been
// persisted for a campaign key (section 4.1: get_status(), section 7:
// TerminalError class).
var ErrStatusNotFound = entity.NewTerminalError("campaign status not found")

// ErrRequestIDMismatch is returned by Run when req.Key() differs from
// req.RequestID. Run takes no separate entity key and Key() returns
// RequestID, so a request is not checked against the key it was dispatched
// on and Run does not return this error in practice.
var ErrRequestIDMismatch = entity.NewTerminalError("campaign request_id does not match key")

// entityStore is the subset of entitystore.Store this package needs.
type entityStore interface {
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, val any) error
}

// weekRunner is the subset of week.Workflow this package calls into
// synchronously, per section 4.1 step 5 ("await result").
type weekRunner interface {
	Run(ctx context.Context, req week.Request) error
}

// clock is the external GPST time oracle interface from section 4.8.
type clock interface {
	CurrentSeconds() float64
	CurrentWeek() uint
}

// Workflow implements the Campaign Workflow from section 4.1.
type Workflow struct {
	entities   entityStore
	weeks      weekRunner
	clock      clock
	dispatcher *entity.Dispatcher
}

// NewWorkflow creates a Workflow wired to its collaborators.
func NewWorkflow(entities entityStore, weeks weekRunner, clk clock, dispatcher *entity.Dispatcher) *Workflow {
	return &Workflow{entities: entities, weeks: weeks, clock: clk, dispatcher: dispatcher}
}

// Run implements run(CampaignRequest) from section 4.1, steps 1-5.
func (c *Workflow) Run(ctx context.Context, req Request) error {
	if req.Key() != req.RequestID {
		return ErrRequestIDMismatch
	}

	// Step 1: schedule the next recurrence first, so a crash during this
	// run never loses the next tick (section 4.1, section 5 "Cancellation
	// and timeouts").
	if req.Recurring > 0 {
		next := req
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("failed to generate next campaign request id: %w", err)
		}
		next.RequestID = id.String()
		c.dispatcher.After(ctx, next.Key(), req.Recurring, func(ctx context.Context) error {
			return c.Run(ctx, next)
		})
	}

	status := Status{
		Request:     req,
		TimeStarted: time.Unix(0, int64(c.clock.CurrentSeconds()*float64(time.Second))).UTC(),
	}
	currentWeek := c.clock.CurrentWeek()

	if err := c.saveStatus(ctx, status); err != nil {
		return err
	}

	weeks := enumerateWeeks(req.Weeks, currentWeek)
	for _, w := range weeks {
		wr := week.Request{
			RequestID:    req.RequestID,
			Week:         w,
			Parallelism:  req.Parallelism,
			ProcessFiles: req.ProcessFiles,
		}
		if err := c.weeks.Run(ctx, wr); err != nil {
			status.WeeksFailed = append(status.WeeksFailed, w)
		} else {
			status.WeeksCompleted++
		}
		if err := c.saveStatus(ctx, status); err != nil {
			return err
		}
	}

	now := time.Now()
	status.TimeCompleted = &now
	return c.saveStatus(ctx, status)
}

// enumerateWeeks implements section 4.1.1: week enumeration, emitted in
// descending (newest-first) order.
func enumerateWeeks(sel WeekSelector, currentWeek uint) []uint {
	var weeks []uint
	switch sel.Kind {
	case AllWeeks:
		for w := currentWeek; w >= MinWeek; w-- {
			weeks = append(weeks, w)
			if w == 0 {
				break
			}
		}
	case RecentWeeks:
		n := sel.N
		if n == 0 {
			n = DefaultLookback
		}
		start := uint(0)
		if currentWeek > n {
			start = currentWeek - n
		}
		for w := currentWeek; w >= start; w-- {
			weeks = append(weeks, w)
			if w == 0 {
				break
			}
		}
	case WeeksList:
		weeks = append(weeks, sel.Weeks...)
		// Emit weeks in reverse order (newest first), per section 4.1.1,
		// independent of the caller-supplied ordering.
		for i, j := 0, len(weeks)-1; i < j; i, j = i+1, j-1 {
			weeks[i], weeks[j] = weeks[j], weeks[i]
		}
		sortDescending(weeks)
	}
	return weeks
}

// sortDescending sorts weeks in descending order. WeeksList's caller-given
// order is not assumed sorted, so we normalize it the same way the
// range-based selectors naturally produce (section 4.1.1: "Emit weeks in
// reverse order (newest first)").
func sortDescending(weeks []uint) {
	for i := 1; i < len(weeks); i++ {
		for j := i; j > 0 && weeks[j-1] < weeks[j]; j-- {
			weeks[j-1], weeks[j] = weeks[j], weeks[j-1]
		}
	}
}

// GetStatus implements get_status() from section 4.1.
func (c *Workflow) GetStatus(ctx context.Context, requestID string) (Status, error) {
	var status Status
	found, err := c.entities.Load(ctx, requestID, &status)
	if err != nil {
		return Status{}, fmt.Errorf("failed to load campaign status for %s: %w", requestID, err)
	}
	if !found {
		return Status{}, ErrStatusNotFound
	}
	return status, nil
}

func (c *Workflow) saveStatus(ctx context.Context, status Status) error {
	now := time.Now()
	status.LastUpdate = &now
	if err := c.entities.Save(ctx, status.Request.Key(), status); err != nil {
		return fmt.Errorf("failed to save campaign status for %s: %w", status.Request.Key(), err)
	}
	return nil
}
