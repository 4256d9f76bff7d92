package store

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID extracts the numeric identifier from a CRS label like "EPSG:6372".
// Labels that carry no usable number map to 0.
func SRID(crs string) int {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// EncodeGeometry serializes a polygon geometry as little-endian EWKB
// tagged with the SRID of the given CRS label. Nil geometry encodes to nil.
func EncodeGeometry(g geom.T, crs string) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	srid := SRID(crs)
	switch t := g.(type) {
	case *geom.Polygon:
		g = t.SetSRID(srid)
	case *geom.MultiPolygon:
		g = t.SetSRID(srid)
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode geometry")
	}
	return data, nil
}

// DecodeGeometry parses EWKB bytes back into a geometry. Empty input
// yields a nil geometry.
func DecodeGeometry(data []byte) (geom.T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode geometry")
	}
	return g, nil
}
