package overlay

import (
	"github.com/ChuLiYu/slidetiles/internal/palette"
	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// Label is one marker applied to a picked feature.
type Label struct {
	Name  string     `json:"name"`
	Color types.RGBA `json:"color"`
}

// PickInfo describes the feature under the cursor.
type PickInfo struct {
	Tile   types.TileKey `json:"tile"`
	Index  int           `json:"index"`
	ID     string        `json:"id,omitempty"`
	Labels []Label       `json:"labels"`
}

// Pick reports the id of feature index of t and a label for every enabled
// marker whose bit is set in the feature's bitmask, in enabled order. ok is
// false when the index is out of range or no label applies.
func Pick(t *Tile, index int, markers []types.MarkerDefinition, enabled []string) (PickInfo, bool) {
	chunk, row, ok := t.locate(index)
	if !ok {
		return PickInfo{}, false
	}
	bitmasks, err := t.chunks(ColumnBitmask)
	if err != nil {
		return PickInfo{}, false
	}
	full, err := bitmaskAt(bitmasks[chunk], row)
	if err != nil {
		return PickInfo{}, false
	}

	ordinal := markerOrdinals(types.MarkerNames(markers))
	info := PickInfo{Tile: t.Key, Index: index}
	for _, name := range enabled {
		i, known := ordinal[name]
		if !known || i >= palette.MaxMarkers || full&(1<<uint(i)) == 0 {
			continue
		}
		info.Labels = append(info.Labels, Label{Name: name, Color: markers[i].Color})
	}
	if len(info.Labels) == 0 {
		return PickInfo{}, false
	}
	if ids, err := t.chunks(ColumnID); err == nil && !ids[chunk].IsNull(row) {
		info.ID = ids[chunk].ValueStr(row)
	}
	return info, true
}
