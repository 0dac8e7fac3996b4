package fleet

import (
	"log/slog"
	"math"

	"github.com/uber/h3-go/v4"

	"skysurvey/pkg/geo"
	"skysurvey/pkg/model"
)

// baseCellResolution 5 gives cells with ~8.5 km edges, a good match for
// base operational radii in the tens of kilometers.
const baseCellResolution = 5

// maxSearchRing bounds the expanding ring search before falling back to
// a full scan.
const maxSearchRing = 16

// BaseIndex answers nearest-active-base queries. Bases are bucketed into
// H3 cells; lookups expand outward ring by ring and settle ties by
// haversine distance. The index is rebuilt from the store on demand, it
// holds no live references.
type BaseIndex struct {
	cells map[h3.Cell][]*model.Base
	bases []*model.Base
}

// NewBaseIndex builds an index over the given bases. Bases that fail to
// bucket (invalid coordinates) are kept for the fallback scan only.
func NewBaseIndex(bases []*model.Base) *BaseIndex {
	idx := &BaseIndex{
		cells: make(map[h3.Cell][]*model.Base),
		bases: bases,
	}
	for _, b := range bases {
		cell, err := h3.LatLngToCell(h3.NewLatLng(b.Location.Lat, b.Location.Lng), baseCellResolution)
		if err != nil {
			slog.Warn("base index: cannot bucket base", "base", b.BaseID, "error", err)
			continue
		}
		idx.cells[cell] = append(idx.cells[cell], b)
	}
	return idx
}

// Nearest returns the base closest to the given point, or nil when the
// index is empty.
func (idx *BaseIndex) Nearest(p geo.Point) *model.Base {
	if len(idx.bases) == 0 {
		return nil
	}

	origin, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), baseCellResolution)
	if err != nil {
		return idx.scan(p)
	}

	seen := make(map[h3.Cell]struct{})
	for k := 0; k <= maxSearchRing; k++ {
		disk, err := origin.GridDisk(k)
		if err != nil {
			return idx.scan(p)
		}

		var best *model.Base
		bestDist := math.Inf(1)
		for _, cell := range disk {
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			for _, b := range idx.cells[cell] {
				d := geo.Distance(p, b.Location.GeoPoint())
				if d < bestDist {
					best, bestDist = b, d
				}
			}
		}
		// A hit in ring k can still be beaten by a base one ring out, so
		// confirm against the next ring before returning.
		if best != nil {
			if challenger, d := idx.bestInRing(origin, k+1, p, seen); challenger != nil && d < bestDist {
				best = challenger
			}
			return best
		}
	}
	return idx.scan(p)
}

func (idx *BaseIndex) bestInRing(origin h3.Cell, k int, p geo.Point, seen map[h3.Cell]struct{}) (*model.Base, float64) {
	disk, err := origin.GridDisk(k)
	if err != nil {
		return nil, 0
	}
	var best *model.Base
	bestDist := math.Inf(1)
	for _, cell := range disk {
		if _, ok := seen[cell]; ok {
			continue
		}
		seen[cell] = struct{}{}
		for _, b := range idx.cells[cell] {
			d := geo.Distance(p, b.Location.GeoPoint())
			if d < bestDist {
				best, bestDist = b, d
			}
		}
	}
	return best, bestDist
}

// scan is the haversine fallback over every indexed base.
func (idx *BaseIndex) scan(p geo.Point) *model.Base {
	var best *model.Base
	bestDist := math.Inf(1)
	for _, b := range idx.bases {
		d := geo.Distance(p, b.Location.GeoPoint())
		if d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}
