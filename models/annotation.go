package models

// MapAnnotation is the map pin derived from a card that has a location.
type MapAnnotation struct {
	CardID   string   `json:"card_id"`
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	Category Category `json:"category"`
	Color    string   `json:"color"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
}

// RankedAnnotation pairs an annotation with its distance in meters from
// the viewer.
type RankedAnnotation struct {
	MapAnnotation
	Distance     float64 `json:"distance"`
	DistanceText string  `json:"distance_text"`
}
