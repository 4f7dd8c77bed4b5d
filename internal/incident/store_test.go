package incident_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/oskour/internal/incident"
	"github.com/raphaelgruber/oskour/internal/models"
	"github.com/raphaelgruber/oskour/internal/storage"
)

func sample() []models.IncidentRecord {
	return []models.IncidentRecord{
		{ApplicationID: "sas", ApplicationName: "SAS", Status: models.StatusIncident},
		{ApplicationID: "webex", ApplicationName: "Webex", Status: models.StatusOK},
		{ApplicationID: "legacy-erp", ApplicationName: "Legacy ERP", Status: models.StatusOK},
	}
}

func TestLoadDefaultsWhenAbsent(t *testing.T) {
	s := incident.NewStore(storage.NewMemoryStore(), nil)
	assert.Equal(t, models.DefaultIncidents(), s.Load(context.Background()))
}

func TestLoadDefaultsWhenCorrupt(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, storage.KeyIncidents, "{not json"))

	s := incident.NewStore(kv, nil)
	assert.Equal(t, models.DefaultIncidents(), s.Load(ctx))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := incident.NewStore(storage.NewMemoryStore(), nil)

	require.NoError(t, s.Save(ctx, sample()))
	assert.Equal(t, sample(), s.Load(ctx))

	require.NoError(t, s.Save(ctx, nil))
	assert.Empty(t, s.Load(ctx), "an empty collection is a valid value")
	assert.NotNil(t, s.Load(ctx))
}

func TestSaveRejectsDuplicates(t *testing.T) {
	s := incident.NewStore(storage.NewMemoryStore(), nil)
	records := append(sample(), models.IncidentRecord{ApplicationID: "sas", ApplicationName: "SAS bis", Status: models.StatusOK})

	err := s.Save(context.Background(), records)
	assert.ErrorIs(t, err, incident.ErrDuplicateApplication)
}

func TestSaveRejectsUnknownStatus(t *testing.T) {
	s := incident.NewStore(storage.NewMemoryStore(), nil)
	err := s.Save(context.Background(), []models.IncidentRecord{{ApplicationID: "sas", Status: "down"}})
	assert.Error(t, err)
}

func TestInitializeIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	s := incident.NewStore(kv, nil)

	require.NoError(t, s.InitializeIfAbsent(ctx))
	assert.Equal(t, models.DefaultIncidents(), s.Load(ctx))

	require.NoError(t, s.Save(ctx, sample()))
	require.NoError(t, s.InitializeIfAbsent(ctx))
	assert.Equal(t, sample(), s.Load(ctx), "existing state is never overwritten")

	raw, _, _ := kv.Get(ctx, storage.KeyIncidents)
	require.NoError(t, s.InitializeIfAbsent(ctx))
	after, _, _ := kv.Get(ctx, storage.KeyIncidents)
	assert.Equal(t, raw, after)
}

func TestSubscribePropagatesToOtherViews(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	admin := incident.NewStore(kv, nil)
	ticker := incident.NewStore(kv, nil)
	require.NoError(t, admin.InitializeIfAbsent(ctx))

	var mu sync.Mutex
	var seen [][]models.IncidentRecord
	unsubscribe := ticker.Subscribe(func(records []models.IncidentRecord) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, records)
	})
	defer unsubscribe()

	// Unrelated keys are ignored.
	require.NoError(t, kv.Set(ctx, storage.KeySessionID, "abc"))

	_, err := admin.Apply(ctx, map[string]models.Status{"sas": models.StatusIncident})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	active := incident.Active(seen[0])
	require.Len(t, active, 1)
	assert.Equal(t, "sas", active[0].ApplicationID)
}

func TestSubscribeAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	kvA, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	defer kvA.Close()
	kvB, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	defer kvB.Close()

	admin := incident.NewStore(kvA, nil)
	ticker := incident.NewStore(kvB, nil)

	updates := make(chan []models.IncidentRecord, 4)
	ticker.Subscribe(func(records []models.IncidentRecord) { updates <- records })

	require.NoError(t, admin.Save(ctx, sample()))

	select {
	case got := <-updates:
		assert.Equal(t, sample(), got)
	case <-time.After(3 * time.Second):
		t.Fatal("ticker never saw the admin change")
	}
}

func TestApplyUnknownApplication(t *testing.T) {
	ctx := context.Background()
	s := incident.NewStore(storage.NewMemoryStore(), nil)

	_, err := s.Apply(ctx, map[string]models.Status{"nope": models.StatusIncident})
	assert.ErrorIs(t, err, incident.ErrUnknownApplication)
	assert.Equal(t, models.DefaultIncidents(), s.Load(ctx), "nothing saved on error")
}

func TestLastWriteWins(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	a := incident.NewStore(kv, nil)
	b := incident.NewStore(kv, nil)

	first := a.Load(ctx)
	second := b.Load(ctx)
	first[0].Status = models.StatusIncident
	second[1].Status = models.StatusIncident

	require.NoError(t, a.Save(ctx, first))
	require.NoError(t, b.Save(ctx, second))
	assert.Equal(t, second, a.Load(ctx))
}

func TestActiveAndLookup(t *testing.T) {
	records := sample()
	active := incident.Active(records)
	require.Len(t, active, 1)
	assert.Equal(t, "sas", active[0].ApplicationID)
	assert.Empty(t, incident.Active(models.DefaultIncidents()))

	r, ok := incident.Lookup(records, "webex")
	assert.True(t, ok)
	assert.Equal(t, "Webex", r.ApplicationName)
	_, ok = incident.Lookup(records, "nope")
	assert.False(t, ok)
}

func TestExportImport(t *testing.T) {
	for _, format := range []incident.Format{incident.FormatYAML, incident.FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, incident.Export(&buf, sample(), format))

			got, err := incident.Import(&buf, format)
			require.NoError(t, err)
			assert.Equal(t, sample(), got)
		})
	}
}

func TestImportYAMLFieldNames(t *testing.T) {
	in := `
- application_id: artis
  application_name: Artis
  status: incident
`
	got, err := incident.Import(strings.NewReader(in), incident.FormatYAML)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusIncident, got[0].Status)
}

func TestImportRejectsDuplicates(t *testing.T) {
	in := `[{"applicationId":"sas","status":"ok"},{"applicationId":"sas","status":"ok"}]`
	_, err := incident.Import(strings.NewReader(in), incident.FormatJSON)
	assert.ErrorIs(t, err, incident.ErrDuplicateApplication)
}

func TestParseFormat(t *testing.T) {
	f, err := incident.ParseFormat("yml")
	require.NoError(t, err)
	assert.Equal(t, incident.FormatYAML, f)
	_, err = incident.ParseFormat("xml")
	assert.Error(t, err)
}
