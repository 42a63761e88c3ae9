package models

import "time"

// DefaultCardColor is used when a card has no display color of its own.
const DefaultCardColor = "#008080"

// Card is a user's digital business card. ID equals the owner's user id.
type Card struct {
	ID         string    `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	Profession string    `json:"profession" bson:"profession"`
	Role       string    `json:"role" bson:"role"`
	Company    string    `json:"company" bson:"company"`
	Email      string    `json:"email,omitempty" bson:"email,omitempty"`
	Phone      string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Website    string    `json:"website,omitempty" bson:"website,omitempty"`
	LinkedIn   string    `json:"linkedin,omitempty" bson:"linkedin,omitempty"`
	Twitter    string    `json:"twitter,omitempty" bson:"twitter,omitempty"`
	Instagram  string    `json:"instagram,omitempty" bson:"instagram,omitempty"`
	GitHub     string    `json:"github,omitempty" bson:"github,omitempty"`
	Location   *GeoPoint `json:"location,omitempty" bson:"location,omitempty"`
	Color      string    `json:"color,omitempty" bson:"color,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`

	// Category is derived from Role when the catalog loads; never stored.
	Category Category `json:"category,omitempty" bson:"-"`
}

// DisplayColor returns the card color, falling back to DefaultCardColor.
func (c Card) DisplayColor() string {
	if c.Color == "" {
		return DefaultCardColor
	}
	return c.Color
}

// GeoPoint is a GeoJSON point. Coordinates are [lon, lat].
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

func NewGeoPoint(lat, lon float64) *GeoPoint {
	return &GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

// Valid reports whether p holds a single in-range lon/lat pair.
func (p *GeoPoint) Valid() bool {
	if p == nil || len(p.Coordinates) != 2 {
		return false
	}
	lon, lat := p.Coordinates[0], p.Coordinates[1]
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func (p *GeoPoint) Lat() float64 { return p.Coordinates[1] }
func (p *GeoPoint) Lon() float64 { return p.Coordinates[0] }
