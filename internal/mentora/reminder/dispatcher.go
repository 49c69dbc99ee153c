// Package reminder runs a cron-driven scan over scheduled courses and pushes
// a notification shortly before each one starts.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mentora-bot/mentora/internal/mentora/store"
)

// Notifier delivers a reminder to a user. Implementations wrap whatever
// push channel the deployment uses.
type Notifier interface {
	Send(ctx context.Context, userID, message string) error
}

// scanTimeout bounds one full reminder sweep.
const scanTimeout = 30 * time.Second

// Dispatcher periodically scans the course collection for entries starting
// within the lookahead window and notifies their owners once each.
type Dispatcher struct {
	store     store.Store
	notifier  Notifier
	cron      *cron.Cron
	lookahead time.Duration
	now       func() time.Time
}

// NewDispatcher creates a dispatcher scanning on the given cron schedule.
func NewDispatcher(st store.Store, n Notifier, schedule string, lookahead time.Duration) (*Dispatcher, error) {
	d := &Dispatcher{
		store:     st,
		notifier:  n,
		cron:      cron.New(),
		lookahead: lookahead,
		now:       time.Now,
	}
	if _, err := d.cron.AddFunc(schedule, d.runScan); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}
	return d, nil
}

// Start begins the scheduled scans.
func (d *Dispatcher) Start() {
	d.cron.Start()
	slog.Info("reminder dispatcher started", "lookahead", d.lookahead)
}

// Stop halts scheduling and waits for any in-flight scan to finish.
func (d *Dispatcher) Stop() {
	<-d.cron.Stop().Done()
}

func (d *Dispatcher) runScan() {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()
	if err := d.Scan(ctx); err != nil {
		slog.Error("reminder scan failed", "error", err)
	}
}

// courseEntry is the subset of a course document the scan reads. The raw
// document is preserved on write so unknown fields survive the round trip.
type courseEntry struct {
	UserID     string    `json:"user_id"`
	Student    string    `json:"student"`
	Course     string    `json:"course"`
	NextTime   time.Time `json:"next_time"`
	RemindedAt time.Time `json:"reminded_at"`
}

// Scan walks all stored courses and notifies owners of entries starting
// within the lookahead window. Each entry is reminded at most once per
// scheduled occurrence.
func (d *Dispatcher) Scan(ctx context.Context) error {
	docs, err := d.store.Query(ctx, store.CollectionCourses, nil)
	if err != nil {
		return fmt.Errorf("scan courses: %w", err)
	}

	now := d.now()
	deadline := now.Add(d.lookahead)

	for _, doc := range docs {
		var entry courseEntry
		if err := json.Unmarshal(doc.Data, &entry); err != nil {
			slog.Warn("skipping malformed course document", "id", doc.ID, "error", err)
			continue
		}
		if entry.NextTime.IsZero() || entry.NextTime.Before(now) || entry.NextTime.After(deadline) {
			continue
		}
		if !entry.RemindedAt.IsZero() && !entry.RemindedAt.Before(entry.NextTime.Add(-d.lookahead)) {
			continue // already reminded for this occurrence
		}

		msg := reminderMessage(entry)
		if err := d.notifier.Send(ctx, entry.UserID, msg); err != nil {
			slog.Warn("reminder delivery failed",
				"user_id", entry.UserID, "course", entry.Course, "error", err)
			continue
		}
		if err := d.markReminded(ctx, doc, now); err != nil {
			slog.Warn("failed to mark reminder sent", "id", doc.ID, "error", err)
		}
	}
	return nil
}

func reminderMessage(entry courseEntry) string {
	when := entry.NextTime.Format("Mon 15:04")
	if entry.Student != "" {
		return fmt.Sprintf("Reminder: %s has %s at %s.", entry.Student, entry.Course, when)
	}
	return fmt.Sprintf("Reminder: %s at %s.", entry.Course, when)
}

// markReminded stamps reminded_at on the stored document without dropping
// fields the scan does not model.
func (d *Dispatcher) markReminded(ctx context.Context, doc store.Document, now time.Time) error {
	var raw map[string]any
	if err := json.Unmarshal(doc.Data, &raw); err != nil {
		return err
	}
	raw["reminded_at"] = now.Format(time.RFC3339)
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return d.store.Update(ctx, store.CollectionCourses, doc.ID, data)
}
