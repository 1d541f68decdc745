package normalize

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/oceansat/geoharvest/internal/harvest"
)

// ToPolygon converts four bounding scalars into a closed GeoJSON Polygon.
// The ring runs NW, NE, SE, SW and closes back on NW (5 points). Any
// missing or non-numeric coordinate yields a GeometryError and no geometry.
func ToPolygon(west, east, south, north string) (string, error) {
	w, err := parseCoord("west", west)
	if err != nil {
		return "", err
	}
	e, err := parseCoord("east", east)
	if err != nil {
		return "", err
	}
	s, err := parseCoord("south", south)
	if err != nil {
		return "", err
	}
	n, err := parseCoord("north", north)
	if err != nil {
		return "", err
	}

	ring := orb.Ring{
		{w, n},
		{e, n},
		{e, s},
		{w, s},
		{w, n},
	}
	data, err := geojson.NewGeometry(orb.Polygon{ring}).MarshalJSON()
	if err != nil {
		return "", &harvest.GeometryError{Reason: err.Error()}
	}
	return string(data), nil
}

func parseCoord(name, value string) (float64, error) {
	if value == "" {
		return 0, &harvest.GeometryError{Reason: name + " bound is missing"}
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &harvest.GeometryError{Reason: name + " bound is not numeric"}
	}
	return f, nil
}
