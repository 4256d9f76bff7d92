package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestSRID(t *testing.T) {
	tests := []struct {
		crs  string
		want int
	}{
		{"EPSG:6372", 6372},
		{"epsg:4326", 4326},
		{"  EPSG:32614  ", 32614},
		{"6372", 6372},
		{"", 0},
		{"urn:ogc:def:crs:EPSG::6372", 0},
		{"EPSG:abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.crs, func(t *testing.T) {
			assert.Equal(t, tt.want, SRID(tt.crs))
		})
	}
}

func TestGeometryRoundTrip(t *testing.T) {
	src := testPolygon()

	data, err := EncodeGeometry(src, "EPSG:6372")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := DecodeGeometry(data)
	require.NoError(t, err)

	poly, ok := got.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 6372, poly.SRID())
	assert.Equal(t, src.FlatCoords(), poly.FlatCoords())
}

func TestGeometryRoundTripMultiPolygon(t *testing.T) {
	src := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
		{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}},
		{{{20, 20}, {30, 20}, {30, 30}, {20, 30}, {20, 20}}},
	})

	data, err := EncodeGeometry(src, "EPSG:6372")
	require.NoError(t, err)

	got, err := DecodeGeometry(data)
	require.NoError(t, err)

	mp, ok := got.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 6372, mp.SRID())
}

func TestEncodeGeometryNil(t *testing.T) {
	data, err := EncodeGeometry(nil, "EPSG:6372")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestDecodeGeometryEmpty(t *testing.T) {
	g, err := DecodeGeometry(nil)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestDecodeGeometryGarbage(t *testing.T) {
	_, err := DecodeGeometry([]byte("definitely not ewkb"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode geometry")
}
