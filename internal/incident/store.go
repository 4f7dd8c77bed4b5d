// Package incident keeps the per-application status collection shared by every open view.
package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/oskour/internal/models"
	"github.com/raphaelgruber/oskour/internal/storage"
)

var (
	// ErrDuplicateApplication is returned by Save when two records share an application id.
	ErrDuplicateApplication = errors.New("duplicate application id")

	// ErrUnknownApplication is returned by Apply for ids absent from the collection.
	ErrUnknownApplication = errors.New("unknown application")
)

// Store reads and writes the incident collection under storage.KeyIncidents.
// Concurrent writers are last-write-wins; there is no merge.
type Store struct {
	kv     storage.Store
	logger *slog.Logger
}

// NewStore wraps kv. A nil logger uses slog.Default().
func NewStore(kv storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load returns the persisted collection, or the defaults when none is stored or it cannot be parsed.
func (s *Store) Load(ctx context.Context) []models.IncidentRecord {
	raw, ok, err := s.kv.Get(ctx, storage.KeyIncidents)
	if err != nil {
		s.logger.Warn("incidents unreadable, using defaults", "error", err)
		return models.DefaultIncidents()
	}
	if !ok {
		return models.DefaultIncidents()
	}

	var records []models.IncidentRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Warn("incidents corrupt, using defaults", "error", err)
		return models.DefaultIncidents()
	}
	if records == nil {
		records = []models.IncidentRecord{}
	}
	return records
}

// Save persists the full collection, replacing whatever was stored.
// The underlying store notifies every subscriber, in this process and others.
func (s *Store) Save(ctx context.Context, records []models.IncidentRecord) error {
	if err := Validate(records); err != nil {
		return err
	}
	if records == nil {
		records = []models.IncidentRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal incidents: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyIncidents, string(data)); err != nil {
		return fmt.Errorf("save incidents: %w", err)
	}
	s.logger.Debug("incidents saved", "records", len(records), "active", len(Active(records)))
	return nil
}

// InitializeIfAbsent seeds the default collection when nothing is stored yet.
// An unparsable value counts as present and is left alone.
func (s *Store) InitializeIfAbsent(ctx context.Context) error {
	_, ok, err := s.kv.Get(ctx, storage.KeyIncidents)
	if err != nil {
		return fmt.Errorf("read incidents: %w", err)
	}
	if ok {
		return nil
	}
	s.logger.Info("seeding default incident list", "applications", len(models.DefaultApplications))
	return s.Save(ctx, models.DefaultIncidents())
}

// Subscribe calls fn with the freshly loaded collection on every change of the incident key.
func (s *Store) Subscribe(fn func([]models.IncidentRecord)) (unsubscribe func()) {
	return s.kv.Subscribe(func(key string) {
		if key != storage.KeyIncidents {
			return
		}
		fn(s.Load(context.Background()))
	})
}

// Apply sets the given statuses and saves the result. It is the admin "apply changes" action.
func (s *Store) Apply(ctx context.Context, changes map[string]models.Status) ([]models.IncidentRecord, error) {
	records := s.Load(ctx)
	index := make(map[string]int, len(records))
	for i, r := range records {
		index[r.ApplicationID] = i
	}

	for id, status := range changes {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownApplication, id)
		}
		if _, err := models.ParseStatus(string(status)); err != nil {
			return nil, err
		}
		records[i].Status = status
	}

	if err := s.Save(ctx, records); err != nil {
		return nil, err
	}
	s.logger.Info("incident statuses applied", "changes", len(changes))
	return records, nil
}

// Validate checks that application ids are present and unique and statuses are known.
func Validate(records []models.IncidentRecord) error {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ApplicationID == "" {
			return fmt.Errorf("record %q has no application id", r.ApplicationName)
		}
		if seen[r.ApplicationID] {
			return fmt.Errorf("%w: %s", ErrDuplicateApplication, r.ApplicationID)
		}
		seen[r.ApplicationID] = true
		if _, err := models.ParseStatus(string(r.Status)); err != nil {
			return fmt.Errorf("record %s: %w", r.ApplicationID, err)
		}
	}
	return nil
}

// Active returns the records currently in incident, in collection order.
func Active(records []models.IncidentRecord) []models.IncidentRecord {
	var out []models.IncidentRecord
	for _, r := range records {
		if r.Status == models.StatusIncident {
			out = append(out, r)
		}
	}
	return out
}

// Lookup finds a record by application id.
func Lookup(records []models.IncidentRecord, id string) (models.IncidentRecord, bool) {
	for _, r := range records {
		if r.ApplicationID == id {
			return r, true
		}
	}
	return models.IncidentRecord{}, false
}
