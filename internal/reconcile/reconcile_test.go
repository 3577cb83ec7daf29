package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
)

type memStore struct {
	rows      []model.Pharmacy
	nextID    int64
	failNames map[string]bool
}

func (m *memStore) FindByExternalID(_ context.Context, id string) (*model.Pharmacy, error) {
	for i := range m.rows {
		if m.rows[i].ExternalID != nil && *m.rows[i].ExternalID == id {
			p := m.rows[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByCityAndName(_ context.Context, cityID int64, key string) (*model.Pharmacy, error) {
	for i := range m.rows {
		if m.rows[i].CityID == cityID && m.rows[i].NameKey == key {
			p := m.rows[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByBoundingBox(_ context.Context, cityID int64, box geo.Box) ([]model.Pharmacy, error) {
	var out []model.Pharmacy
	for _, p := range m.rows {
		if p.CityID == cityID && box.Contains(geo.Point{Lat: p.Lat, Lng: p.Lng}) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, p *model.Pharmacy) error {
	if m.failNames[p.NameLocal] {
		return errors.New("store: unique constraint violated")
	}
	m.nextID++
	p.ID = m.nextID
	m.rows = append(m.rows, *p)
	return nil
}

func (m *memStore) Update(_ context.Context, p *model.Pharmacy) error {
	for i := range m.rows {
		if m.rows[i].ID == p.ID {
			m.rows[i] = *p
			return nil
		}
	}
	return errors.New("store: not found")
}

func entity(name, placeID string, lat, lng float64, rel int) model.Entity {
	return model.Entity{Candidate: model.Candidate{
		NameLocal:   name,
		Address:     "Njegoševa 1",
		Lat:         &lat,
		Lng:         &lng,
		PlaceID:     placeID,
		Source:      model.SourceGoogle,
		Reliability: rel,
		Hours:       model.Hours{MonFri: "08:00-20:00", Sat: "08:00-20:00", Sun: "Zatvoreno"},
	}}
}

func fixedNow() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestReconcile_CreatesThenIdempotent(t *testing.T) {
	st := &memStore{}
	eng := New(st, Options{Now: fixedNow})
	ents := []model.Entity{
		entity("Apoteka Kruna", "p1", 42.43, 19.26, 90),
		entity("Apoteka Tea", "", 42.45, 19.28, 60),
	}

	first := eng.Reconcile(context.Background(), 1, ents)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 0, first.Errors)
	assert.False(t, first.Actions[0].RequiresReview)
	assert.True(t, first.Actions[1].RequiresReview)

	second := eng.Reconcile(context.Background(), 1, ents)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, MatchExternalID, second.Actions[0].MatchMethod)
	assert.Equal(t, MatchName, second.Actions[1].MatchMethod)
	assert.Empty(t, second.Actions[0].Changes)
	assert.Len(t, st.rows, 2)
}

func TestReconcile_ProximityMatch(t *testing.T) {
	st := &memStore{}
	eng := New(st, Options{Now: fixedNow})
	eng.Reconcile(context.Background(), 1, []model.Entity{entity("Apoteka Sloboda", "", 42.4300, 19.2600, 70)})

	rep := eng.Reconcile(context.Background(), 1, []model.Entity{entity("Apoteka  Sloboda 2", "", 42.4305, 19.2594, 70)})
	require.Len(t, rep.Actions, 1)
	assert.Equal(t, 0, rep.Created)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, MatchCoordinates, rep.Actions[0].MatchMethod)
	assert.Len(t, st.rows, 1)
	assert.Equal(t, "Apoteka  Sloboda 2", st.rows[0].NameLocal)

	var fields []string
	for _, c := range rep.Actions[0].Changes {
		fields = append(fields, c.Field)
	}
	assert.Contains(t, fields, "name_me")
	assert.Contains(t, fields, "lat")
}

func TestReconcile_NameMatchIgnoresCase(t *testing.T) {
	st := &memStore{}
	eng := New(st, Options{Now: fixedNow})
	eng.Reconcile(context.Background(), 1, []model.Entity{entity("Apoteka Centar", "", 42.0, 19.0, 70)})

	rep := eng.Reconcile(context.Background(), 1, []model.Entity{entity("APOTEKA CENTAR", "", 42.5, 19.5, 70)})
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, MatchName, rep.Actions[0].MatchMethod)
}

func TestReconcile_OtherCityDoesNotMatchByName(t *testing.T) {
	st := &memStore{}
	eng := New(st, Options{Now: fixedNow})
	eng.Reconcile(context.Background(), 1, []model.Entity{entity("Apoteka Centar", "", 42.0, 19.0, 70)})

	rep := eng.Reconcile(context.Background(), 2, []model.Entity{entity("Apoteka Centar", "", 42.0, 19.0, 70)})
	assert.Equal(t, 1, rep.Created)
}

func TestReconcile_ContinuesOnError(t *testing.T) {
	st := &memStore{failNames: map[string]bool{"Apoteka Loša": true}}
	eng := New(st, Options{Now: fixedNow})
	noCoords := model.Entity{Candidate: model.Candidate{NameLocal: "Apoteka Bez"}}

	rep := eng.Reconcile(context.Background(), 1, []model.Entity{
		entity("Apoteka Loša", "", 42.1, 19.1, 70),
		noCoords,
		entity("Apoteka Dobra", "", 42.2, 19.2, 70),
	})
	assert.Equal(t, 2, rep.Errors)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, ActionError, rep.Actions[0].Action)
	assert.NotEmpty(t, rep.Actions[0].Error)
	assert.Equal(t, ActionCreated, rep.Actions[2].Action)
}

func TestReconcile_CancelledContextCountsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := New(&memStore{}, Options{}).Reconcile(ctx, 1, []model.Entity{entity("A", "", 42, 19, 70), entity("B", "", 42.1, 19.1, 70)})
	assert.Equal(t, 2, rep.Errors)
	assert.Empty(t, rep.Actions)
}

func TestPharmacy_Defaults(t *testing.T) {
	p := Pharmacy(model.Entity{}, 3, fixedNow())
	assert.Equal(t, model.UnknownName, p.NameLocal)
	assert.Equal(t, model.UnknownName, p.NameSecondary)
	assert.Equal(t, model.UnknownAddress, p.Address)
	assert.Equal(t, model.HoursUnknown, p.HoursSun)
	assert.Nil(t, p.ExternalID)
	assert.True(t, p.Active)
	require.NotNil(t, p.LastOnlineSync)
	assert.Equal(t, fixedNow(), *p.LastOnlineSync)
}

func TestRecommendations(t *testing.T) {
	assert.Equal(t, []string{"No changes made - database may already be up to date"}, Recommendations(0, 0, 0, 5))

	rec := Recommendations(0, 0, 0, 0)
	assert.Equal(t, NoResultsRecommendations(), rec)

	rec = Recommendations(8, 4, 5, 17)
	assert.Contains(t, rec, "High error rate (29%) - check API quotas and DB schema")
	assert.Contains(t, rec, "Large dataset processed - consider quality review")

	rec = Recommendations(1, 0, 1, 10)
	assert.Contains(t, rec, "Minor processing errors (1) - review error log")
}
