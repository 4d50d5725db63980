package visibility

import (
	"fmt"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sightline/pkg/model"
)

func gridResult(score float64) model.GridResult {
	c := model.NewGridCell("c", orb.Point{1, 2}, nil, 0)
	c.SetScore(score, time.Now())
	return model.GridResult{Cells: []model.GridCell{c}, Stats: model.AnalysisStats{Total: 1}}
}

func TestResultCache_EvictsOldest(t *testing.T) {
	c := NewResultCache(10, time.Hour, model.GridResult.Clone)
	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%d", i), gridResult(float64(i)))
	}
	// Lookups must not protect an entry from eviction
	_, _, ok := c.Get("k0")
	require.True(t, ok)

	c.Put("k10", gridResult(10))
	assert.Equal(t, 10, c.Len())

	_, _, ok = c.Get("k0")
	assert.False(t, ok, "oldest entry should be evicted")
	for i := 1; i <= 10; i++ {
		_, _, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d", i)
	}
}

func TestResultCache_Expires(t *testing.T) {
	c := NewResultCache(10, 50*time.Millisecond, model.GridResult.Clone)
	c.Put("a", gridResult(100))

	got, at, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Cells[0].VisibilityScore)
	assert.WithinDuration(t, time.Now(), at, time.Second)

	time.Sleep(120 * time.Millisecond)
	_, _, ok = c.Get("a")
	assert.False(t, ok)
}

func TestResultCache_HandsOutCopies(t *testing.T) {
	c := NewResultCache(10, time.Hour, model.GridResult.Clone)
	orig := gridResult(100)
	c.Put("a", orig)

	orig.Cells[0].VisibilityScore = 1
	got, _, _ := c.Get("a")
	assert.Equal(t, 100.0, got.Cells[0].VisibilityScore)

	got.Cells[0].VisibilityScore = 2
	again, _, _ := c.Get("a")
	assert.Equal(t, 100.0, again.Cells[0].VisibilityScore)
}

func TestFlightPathKey(t *testing.T) {
	p1 := model.FlightPath{Waypoints: []model.Point3D{{Lon: 1, Lat: 2, Elevation: 100}, {Lon: 1.01, Lat: 2, Elevation: 100}}}
	p2 := model.FlightPath{Name: "renamed", Waypoints: p1.Waypoints}
	p3 := model.FlightPath{Waypoints: []model.Point3D{{Lon: 1, Lat: 2, Elevation: 120}, {Lon: 1.01, Lat: 2, Elevation: 100}}}

	assert.Equal(t, FlightPathKey(p1, 30, 500), FlightPathKey(p2, 30, 500))
	assert.NotEqual(t, FlightPathKey(p1, 30, 500), FlightPathKey(p1, 50, 500))
	assert.NotEqual(t, FlightPathKey(p1, 30, 500), FlightPathKey(p1, 30, 800))
	assert.NotEqual(t, FlightPathKey(p1, 30, 500), FlightPathKey(p3, 30, 500))
}
