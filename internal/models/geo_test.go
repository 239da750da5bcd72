package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm_ZeroAtIdentity(t *testing.T) {
	p := GeoPoint{Latitude: 50.9375, Longitude: 6.9603} // Кёльн
	assert.Equal(t, 0.0, DistanceKm(p, p))
}

func TestDistanceKm_Symmetric(t *testing.T) {
	points := []GeoPoint{
		{Latitude: 50.9375, Longitude: 6.9603},
		{Latitude: 52.5200, Longitude: 13.4050},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 0, Longitude: 0},
	}

	for _, a := range points {
		for _, b := range points {
			assert.InDelta(t, DistanceKm(a, b), DistanceKm(b, a), 1e-9)
		}
	}
}

func TestDistanceKm_KnownDistance(t *testing.T) {
	// Кёльн -> Берлин, ~477 км по дуге большого круга
	cologne := GeoPoint{Latitude: 50.9375, Longitude: 6.9603}
	berlin := GeoPoint{Latitude: 52.5200, Longitude: 13.4050}

	d := DistanceKm(cologne, berlin)
	assert.InDelta(t, 477.0, d, 5.0)
}

func TestGeoPoint_Valid(t *testing.T) {
	assert.True(t, GeoPoint{Latitude: 0, Longitude: 0}.Valid())
	assert.True(t, GeoPoint{Latitude: -90, Longitude: 180}.Valid())
	assert.False(t, GeoPoint{Latitude: 91, Longitude: 0}.Valid())
	assert.False(t, GeoPoint{Latitude: 0, Longitude: -181}.Valid())
}
