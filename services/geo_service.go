package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"cardex-server/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	cardsGeoKey       = "cards:geo"
	earthRadiusMeters = 6371000.0
	maxNearbyResults  = 50
)

// GeoService projects cards onto the map and keeps the Redis geo index
// used for server side proximity queries.
type GeoService struct {
	redisClient *redis.Client
}

// NearbyHit is one raw result of a geo index query.
type NearbyHit struct {
	CardID   string
	Distance float64 // meters
	Lat      float64
	Lon      float64
}

func NewGeoService(redisClient *redis.Client) *GeoService {
	return &GeoService{redisClient: redisClient}
}

// Project maps every card with a location to an annotation, in order.
func Project(cards []models.Card) []models.MapAnnotation {
	annotations := []models.MapAnnotation{}
	for _, card := range cards {
		if !card.Location.Valid() {
			continue
		}
		category := card.Category
		if category == "" {
			category = Classify(card.Role)
		}
		annotations = append(annotations, models.MapAnnotation{
			CardID:   card.ID,
			Name:     card.Name,
			Role:     card.Role,
			Category: category,
			Color:    card.DisplayColor(),
			Lat:      card.Location.Lat(),
			Lon:      card.Location.Lon(),
		})
	}
	return annotations
}

// Rank orders annotations by great-circle distance from (lat, lon).
// Equal distances keep their input order.
func Rank(annotations []models.MapAnnotation, lat, lon float64) []models.RankedAnnotation {
	ranked := make([]models.RankedAnnotation, 0, len(annotations))
	for _, a := range annotations {
		d := Haversine(lat, lon, a.Lat, a.Lon)
		ranked = append(ranked, models.RankedAnnotation{
			MapAnnotation: a,
			Distance:      d,
			DistanceText:  FormatDistance(d),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})
	return ranked
}

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

// FormatDistance renders meters below 1000 as whole meters and anything
// else as kilometers with two decimals.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d meters", int(meters))
	}
	return fmt.Sprintf("%.2f kms", meters/1000)
}

// Index adds or moves a card in the geo set. Cards without a location are
// removed from it.
func (s *GeoService) Index(ctx context.Context, card models.Card) error {
	if s.redisClient == nil {
		return nil
	}
	if !card.Location.Valid() {
		return s.Remove(ctx, card.ID)
	}
	return s.redisClient.GeoAdd(ctx, cardsGeoKey, &redis.GeoLocation{
		Name:      card.ID,
		Longitude: card.Location.Lon(),
		Latitude:  card.Location.Lat(),
	}).Err()
}

func (s *GeoService) Remove(ctx context.Context, cardID string) error {
	if s.redisClient == nil {
		return nil
	}
	return s.redisClient.ZRem(ctx, cardsGeoKey, cardID).Err()
}

// Reindex rebuilds the geo set from cards.
func (s *GeoService) Reindex(ctx context.Context, cards []models.Card) (int, error) {
	if s.redisClient == nil {
		return 0, nil
	}
	if err := s.redisClient.Del(ctx, cardsGeoKey).Err(); err != nil {
		return 0, err
	}
	indexed := 0
	for _, card := range cards {
		if !card.Location.Valid() {
			continue
		}
		if err := s.Index(ctx, card); err != nil {
			log.Warnf("Failed to add card %s to geo index: %v", card.ID, err)
			continue
		}
		indexed++
	}
	log.Infof("Indexed %d cards into Redis geo set", indexed)
	return indexed, nil
}

// Nearby queries the geo index, closest first. radiusKm bounds the search.
func (s *GeoService) Nearby(ctx context.Context, lat, lon, radiusKm float64) ([]NearbyHit, error) {
	if s.redisClient == nil {
		return nil, fmt.Errorf("geo index not configured")
	}
	geoResults, err := s.redisClient.GeoRadius(ctx, cardsGeoKey, lon, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
		Count:     maxNearbyResults,
	}).Result()
	if err != nil {
		log.Errorf("Redis GeoRadius error: %v", err)
		return nil, err
	}

	hits := make([]NearbyHit, 0, len(geoResults))
	for _, r := range geoResults {
		hits = append(hits, NearbyHit{
			CardID:   r.Name,
			Distance: r.Dist * 1000,
			Lat:      r.Latitude,
			Lon:      r.Longitude,
		})
	}
	return hits, nil
}
