/*
Copyright © 2021 the AerPrep authors.
This file is part of AerPrep.

AerPrep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AerPrep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AerPrep.  If not, see <http://www.gnu.org/licenses/>.
*/

package aerprep

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// indexedBuffer is a source buffer stored in the spatial index.
type indexedBuffer struct {
	geom.Polygon
	src *Source
}

// SourceIndex is a spatial index of source buffers. It is read-only
// after creation and safe for concurrent use.
type SourceIndex struct {
	tree   *rtree.Rtree
	bounds *geom.Bounds
	n      int
}

// NewSourceIndex creates a spatial index of the buffers of sources.
func NewSourceIndex(sources []*Source) *SourceIndex {
	idx := &SourceIndex{
		tree:   rtree.NewTree(25, 50),
		bounds: geom.NewBounds(),
	}
	for _, s := range sources {
		if len(s.Buffer) == 0 {
			continue
		}
		idx.tree.Insert(&indexedBuffer{Polygon: s.Buffer, src: s})
		idx.bounds.Extend(s.Buffer.Bounds())
		idx.n++
	}
	return idx
}

// Len returns the number of indexed buffers.
func (idx *SourceIndex) Len() int { return idx.n }

// Containing returns the sources whose buffers strictly contain p.
func (idx *SourceIndex) Containing(p geom.Point) []*Source {
	var o []*Source
	for _, g := range idx.tree.SearchIntersect(geom.NewBoundsPoint(p)) {
		b := g.(*indexedBuffer)
		if p.Within(b.Polygon) == geom.Inside {
			o = append(o, b.src)
		}
	}
	return o
}

// Nearest returns the source whose buffer is closest to p and the distance
// from p to that buffer, which is zero when p is within it. When several
// buffers are at distance zero, one that strictly contains p is preferred.
// ok is false if the index is empty or p is not a finite point.
func (idx *SourceIndex) Nearest(p geom.Point) (s *Source, d float64, ok bool) {
	if idx.n == 0 || !finite(p.X) || !finite(p.Y) {
		return nil, 0, false
	}
	// Start with a search box about the size of a buffer and grow it
	// until it holds a buffer that is at least as close as the box edge.
	r := math.Max(idx.bounds.Max.X-idx.bounds.Min.X, idx.bounds.Max.Y-idx.bounds.Min.Y) / 64
	if !finite(r) {
		return nil, 0, false
	}
	if r <= 0 {
		r = 1
	}
	for {
		box := &geom.Bounds{
			Min: geom.Point{X: p.X - r, Y: p.Y - r},
			Max: geom.Point{X: p.X + r, Y: p.Y + r},
		}
		d = math.Inf(1)
		inside := false
		for _, g := range idx.tree.SearchIntersect(box) {
			b := g.(*indexedBuffer)
			bd, in := polygonDistance(p, b.Polygon)
			if bd < d || (bd == d && in && !inside) {
				s, d, inside = b.src, bd, in
			}
		}
		if s != nil && d <= r {
			return s, d, true
		}
		if box.Min.X <= idx.bounds.Min.X && box.Min.Y <= idx.bounds.Min.Y &&
			box.Max.X >= idx.bounds.Max.X && box.Max.Y >= idx.bounds.Max.Y {
			// Every buffer has been searched.
			return s, d, s != nil
		}
		r *= 2
	}
}

// polygonDistance returns the distance from p to polygon poly, and whether
// p is strictly inside poly.
func polygonDistance(p geom.Point, poly geom.Polygon) (float64, bool) {
	switch p.Within(poly) {
	case geom.Inside:
		return 0, true
	case geom.OnEdge:
		return 0, false
	}
	d := math.Inf(1)
	for _, ring := range poly {
		for i := range ring {
			a, b := ring[i], ring[(i+1)%len(ring)]
			d = math.Min(d, segmentDistance(p, a, b))
		}
	}
	return d, false
}

// segmentDistance returns the distance from p to the segment from a to b.
func segmentDistance(p, a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return dist(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return dist(p, geom.Point{X: a.X + t*dx, Y: a.Y + t*dy})
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
