package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Apoteka Centar", "apoteka centar"},
		{"  APOTEKA   ČEŠKA-Đurđa ", "apoteka ceska durda"},
		{"Nikšić, Ulica 13. jula", "niksic ulica 13 jula"},
		{"Апотека", ""},
		{"BENU #12!", "benu 12"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.in), tt.in)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Apoteka Centar", "APOTEKA CENTAR"))
	assert.Less(t, Similarity("Apoteka Sloboda", "Unrelated Business Name"), 0.3)
	assert.Equal(t, 0.0, Similarity("", "Apoteka"))
	assert.Equal(t, 0.0, Similarity("Apoteka", "!!!"))
	assert.Equal(t, 1.0, Similarity("Apoteka Žabljak", "apoteka zabljak"))

	// A trailing extra character only costs one position.
	s := Similarity("Montefarm Bar", "Montefarm Barr")
	assert.GreaterOrEqual(t, s, DuplicateThreshold)
}

func TestSimilarity_Range(t *testing.T) {
	pairs := [][2]string{{"Apoteka Lara", "Apoteka Laura"}, {"BENU", "BENU Apoteka"}, {"Kotor", "Tivat"}}
	for _, p := range pairs {
		v := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, v, 0.0, p[0])
		assert.LessOrEqual(t, v, 1.0, p[0])
	}
}

func TestClassifyHours_AllDay(t *testing.T) {
	for _, text := range []string{"Open 24/7", "NON-STOP", "nonstop", "radimo 24 sata", "0:00-24:00", "Open 24 hours"} {
		h := ClassifyHours(text)
		assert.True(t, h.Is24h, text)
		assert.True(t, h.OpenSunday, text)
		assert.Equal(t, model.HoursAllDay, h.MonFri, text)
		assert.Equal(t, model.HoursAllDay, h.Sat, text)
		assert.Equal(t, model.HoursAllDay, h.Sun, text)
	}
}

func TestClassifyHours_Buckets(t *testing.T) {
	h := ClassifyHours("Pon-Pet 08:00 - 21:00; Sub 09:00-14:00; Nedjelja zatvoreno")
	assert.False(t, h.Is24h)
	assert.False(t, h.OpenSunday)
	assert.Equal(t, "08:00 - 21:00", h.MonFri)
	assert.Equal(t, "08:00 - 21:00", h.Sat)
	assert.Equal(t, model.HoursClosed, h.Sun)

	h = ClassifyHours("Monday: 7:30–20:00; Sunday: 9:00–13:00")
	assert.True(t, h.OpenSunday)
	assert.Equal(t, "7:30–20:00", h.Sun)

	h = ClassifyHours("po dogovoru")
	assert.Equal(t, model.HoursFallback, h.MonFri)
	assert.Equal(t, model.HoursClosed, h.Sun)

	h = ClassifyHours("")
	assert.Equal(t, model.Hours{MonFri: "N/A", Sat: "N/A", Sun: "N/A"}, h)
}

func TestReliability_Bounds(t *testing.T) {
	assert.Equal(t, 50, Reliability(Input{}))

	full := Input{
		Phones:       []string{"+382 20 123 456"},
		Website:      "https://example.me",
		Address:      "Bulevar Svetog Petra Cetinjskog 1",
		OpeningHours: "24/7",
		Source:       model.SourceOSM,
		PlaceID:      "abc",
	}
	assert.Equal(t, 100, Reliability(full))

	full.Source = model.SourceGoogle
	assert.Equal(t, 100, Reliability(full))

	assert.Equal(t, 60, Reliability(Input{Address: "Njegoševa 12"}))
	assert.Equal(t, 50, Reliability(Input{Address: "Trg 1", Phones: []string{" "}}))
}

func TestCandidate_Defaults(t *testing.T) {
	c := Candidate(Input{Source: model.SourceGoogle, PlaceID: "p1"})
	assert.Equal(t, model.UnknownName, c.NameLocal)
	assert.Equal(t, model.UnknownName, c.NameSecondary)
	assert.Equal(t, model.UnknownAddress, c.Address)
	assert.False(t, c.HasCoords())
	assert.Equal(t, 60, c.Reliability)
	assert.Equal(t, "N/A", c.Hours.MonFri)
}

func TestCandidate_MapsFields(t *testing.T) {
	c := Candidate(Input{
		Name:         "  Apoteka   Centar ",
		Address:      "Slobode 1",
		Lat:          ptr(42.44),
		Lng:          ptr(19.26),
		Phones:       []string{"020111222", "069333444"},
		Emails:       []string{"a@b.me"},
		OpeningHours: "08:00-20:00",
		Source:       model.SourceOSM,
		NativeType:   "node",
		NativeID:     "42",
	})
	assert.Equal(t, "Apoteka Centar", c.NameLocal)
	assert.Equal(t, "Apoteka Centar", c.NameSecondary)
	assert.Equal(t, "020111222, 069333444", c.Phone)
	assert.Equal(t, "a@b.me", c.Email)
	assert.Equal(t, "node:42", c.NativeKey())
	require.True(t, c.HasCoords())
	assert.Equal(t, 42.44, *c.Lat)
	assert.Equal(t, 85, c.Reliability)
}

func TestClipToBox(t *testing.T) {
	box := geo.Box{MinLat: 41.85, MinLng: 18.40, MaxLat: 43.60, MaxLng: 20.35}
	cands := []model.Candidate{
		{Lat: ptr(42.4), Lng: ptr(19.2)},
		{Lat: ptr(44.8), Lng: ptr(20.4)},
		{},
	}
	assert.Equal(t, 1, ClipToBox(cands, box))
	assert.True(t, cands[0].HasCoords())
	assert.False(t, cands[1].HasCoords())
	assert.Equal(t, 0, ClipToBox(cands, geo.Box{}))
}
