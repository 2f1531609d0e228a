package overlay

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// binaryValues is satisfied by the Arrow binary array types.
type binaryValues interface {
	IsNull(i int) bool
	Value(i int) []byte
}

// decodeOutline returns the outer ring of a WKB polygon as a flat
// [x0,y0,x1,y1,...] slice. For a multipolygon the first polygon is used.
// A null or undecodable geometry yields an empty ring.
func decodeOutline(data []byte) []float64 {
	if len(data) == 0 {
		return nil
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil
	}
	var ring orb.Ring
	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) > 0 {
			ring = geom[0]
		}
	case orb.MultiPolygon:
		if len(geom) > 0 && len(geom[0]) > 0 {
			ring = geom[0][0]
		}
	case orb.Ring:
		ring = geom
	}
	out := make([]float64, 0, 2*len(ring))
	for _, pt := range ring {
		out = append(out, pt[0], pt[1])
	}
	return out
}

func encodeOutline(flat []float64) ([]byte, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("outline has odd coordinate count %d", len(flat))
	}
	ring := make(orb.Ring, 0, len(flat)/2+1)
	for i := 0; i < len(flat); i += 2 {
		ring = append(ring, orb.Point{flat[i], flat[i+1]})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return wkb.Marshal(orb.Polygon{ring})
}
