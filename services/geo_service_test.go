package services

import (
	"context"
	"testing"

	"cardex-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{850, "850 meters"},
		{2500, "2.50 kms"},
		{0, "0 meters"},
		{999.9, "999 meters"},
		{1000, "1.00 kms"},
		{12345.6, "12.35 kms"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDistance(tt.meters))
	}
}

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0, Haversine(1.3, 103.8, 1.3, 103.8), 1e-9)
	// one degree of latitude
	assert.InDelta(t, 111195, Haversine(0, 0, 1, 0), 1)
	// Singapore to Kuala Lumpur, roughly 309 km
	assert.InDelta(t, 309250, Haversine(1.3521, 103.8198, 3.1390, 101.6869), 3000)
}

func TestProjectKeepsOnlyLocatedCardsInOrder(t *testing.T) {
	cards := []models.Card{
		cardAt("a", "Alice", "Doctor", 1.30, 103.80),
		card("b", "Bob", "Doctor", ""),
		cardAt("c", "Carol", "Teacher", 1.31, 103.81),
		{ID: "d", Name: "Dan", Location: &models.GeoPoint{Type: "Point", Coordinates: []float64{500, 1}}},
	}
	got := Project(cards)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].CardID)
	assert.Equal(t, models.CategoryDoctor, got[0].Category)
	assert.Equal(t, models.DefaultCardColor, got[0].Color)
	assert.Equal(t, 1.30, got[0].Lat)
	assert.Equal(t, 103.80, got[0].Lon)
	assert.Equal(t, "c", got[1].CardID)
}

func TestRankIsStableAscending(t *testing.T) {
	annotations := []models.MapAnnotation{
		{CardID: "far", Lat: 1.0, Lon: 0},
		{CardID: "tie-1", Lat: 0.001, Lon: 0},
		{CardID: "near", Lat: 0.0001, Lon: 0},
		{CardID: "tie-2", Lat: 0.001, Lon: 0},
	}
	ranked := Rank(annotations, 0, 0)
	got := make([]string, len(ranked))
	for i, r := range ranked {
		got[i] = r.CardID
	}
	assert.Equal(t, []string{"near", "tie-1", "tie-2", "far"}, got)
	assert.Equal(t, "11 meters", ranked[0].DistanceText)
	assert.Equal(t, "111.19 kms", ranked[3].DistanceText)
}

func TestGeoIndexNearby(t *testing.T) {
	ctx := context.Background()
	geo := NewGeoService(newTestRedis(t))

	require.NoError(t, geo.Index(ctx, cardAt("near", "Near", "Doctor", 1.3000, 103.8000)))
	require.NoError(t, geo.Index(ctx, cardAt("mid", "Mid", "Doctor", 1.3100, 103.8000)))
	require.NoError(t, geo.Index(ctx, cardAt("far", "Far", "Doctor", 3.1390, 101.6869)))

	hits, err := geo.Nearby(ctx, 1.3000, 103.8000, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].CardID)
	assert.Equal(t, "mid", hits[1].CardID)
	assert.InDelta(t, 1112, hits[1].Distance, 15)

	require.NoError(t, geo.Remove(ctx, "mid"))
	hits, err = geo.Nearby(ctx, 1.3000, 103.8000, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestGeoIndexRemovesCardsThatLoseLocation(t *testing.T) {
	ctx := context.Background()
	geo := NewGeoService(newTestRedis(t))
	require.NoError(t, geo.Index(ctx, cardAt("a", "A", "Doctor", 1.3, 103.8)))
	require.NoError(t, geo.Index(ctx, card("a", "A", "Doctor", "")))

	hits, err := geo.Nearby(ctx, 1.3, 103.8, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGeoReindex(t *testing.T) {
	ctx := context.Background()
	geo := NewGeoService(newTestRedis(t))
	require.NoError(t, geo.Index(ctx, cardAt("stale", "S", "Doctor", 1.3, 103.8)))

	n, err := geo.Reindex(ctx, []models.Card{
		cardAt("a", "A", "Doctor", 1.3, 103.8),
		card("b", "B", "Doctor", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := geo.Nearby(ctx, 1.3, 103.8, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].CardID)
}

func TestGeoWithoutRedis(t *testing.T) {
	geo := NewGeoService(nil)
	assert.NoError(t, geo.Index(context.Background(), cardAt("a", "A", "Doctor", 1, 1)))
	_, err := geo.Nearby(context.Background(), 1, 1, 1)
	assert.Error(t, err)
}
