package archive

import (
	"context"
	"log"
	"time"

	"github.com/wichananm65/heladeria-backend/internal/order"
)

// CompletedLister finds completed, non-archived orders completed at or before
// a cutoff.
type CompletedLister interface {
	ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]order.Order, error)
}

// AutoActor is the actor recorded on events written by the auto-archiver.
const AutoActor = "system:auto-archive"

type Failure struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

type RunReport struct {
	Archived []string  `json:"archived"`
	Failed   []Failure `json:"failed"`
}

// AutoArchiver periodically archives orders that have been completed for
// longer than After. It goes through the same deduction as a manual archive.
type AutoArchiver struct {
	archiver *Archiver
	orders   CompletedLister
	After    time.Duration
	Interval time.Duration
	now      func() time.Time
}

func NewAutoArchiver(a *Archiver, orders CompletedLister, after, interval time.Duration) *AutoArchiver {
	return &AutoArchiver{
		archiver: a,
		orders:   orders,
		After:    after,
		Interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce archives every eligible order once. A failed order is reported and
// left for the next run.
func (w *AutoArchiver) RunOnce(ctx context.Context) (RunReport, error) {
	report := RunReport{Archived: []string{}, Failed: []Failure{}}
	due, err := w.orders.ListCompletedBefore(ctx, w.now().Add(-w.After))
	if err != nil {
		return report, err
	}
	for _, o := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res, err := w.archiver.Archive(ctx, o.ID, AutoActor)
		if err != nil {
			log.Printf("warning: auto-archive of order %s failed: %v", o.ID, err)
			report.Failed = append(report.Failed, Failure{OrderID: o.ID, Error: err.Error()})
			continue
		}
		if !res.AlreadyArchived {
			report.Archived = append(report.Archived, o.ID)
		}
	}
	return report, nil
}

// Run calls RunOnce every Interval until ctx is done.
func (w *AutoArchiver) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		report, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("warning: auto-archive run: %v", err)
		} else if len(report.Archived)+len(report.Failed) > 0 {
			log.Printf("auto-archive: %d archived, %d failed", len(report.Archived), len(report.Failed))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
