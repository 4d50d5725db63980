package api

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"sightline/pkg/model"
)

// cellsToGeoJSON renders analysed cells as polygon features.
func cellsToGeoJSON(cells []model.GridCell) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range cells {
		var g orb.Geometry = c.Polygon
		if len(c.Polygon) == 0 {
			g = c.Center
		}
		f := geojson.NewFeature(g)
		f.ID = c.ID
		f.Properties["id"] = c.ID
		f.Properties["elevation"] = c.Elevation
		f.Properties["visibilityScore"] = c.VisibilityScore
		f.Properties["fullyVisible"] = c.FullyVisible
		if !c.LastAnalyzed.IsZero() {
			f.Properties["lastAnalyzed"] = c.LastAnalyzed.UTC().Format(time.RFC3339)
		}
		fc.Append(f)
	}
	return fc
}

// segmentsToGeoJSON renders flight path segments as line features. The
// altitude of each vertex is carried in the elevations property.
func segmentsToGeoJSON(segments []model.VisibilitySegment) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, s := range segments {
		ls := make(orb.LineString, len(s.Points))
		elev := make([]float64, len(s.Points))
		for j, p := range s.Points {
			ls[j] = p.Point()
			elev[j] = p.Elevation
		}
		var g orb.Geometry = ls
		if len(ls) == 1 {
			g = ls[0]
		}
		f := geojson.NewFeature(g)
		f.Properties["index"] = i
		f.Properties["visible"] = s.Visible
		f.Properties["elevations"] = elev
		fc.Append(f)
	}
	return fc
}
