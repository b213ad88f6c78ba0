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
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/aerprep/internal/hash"
)

// MinSegmentLength is the minimum planar length [m] of a segment that
// becomes a source.
const MinSegmentLength = 1.

// bufferQuadSegs is the number of segments used to approximate a quarter
// circle in source buffers.
const bufferQuadSegs = 16

// Source is a straight line source: one segment of a road link.
type Source struct {
	// ID is "{from}_{to}_{segment}".
	ID string

	// UID is a short, stable identifier derived from ID that fits
	// in AERMOD's source ID field.
	UID string

	Start, End geom.Point

	// Flux is the emission flux [mass/m²/s].
	Flux float64

	// Width is the road width [m].
	Width float64

	// Buffer is the area covered by the road: the segment expanded by
	// half of Width with round caps.
	Buffer geom.Polygon
}

// NewSource creates a source for the given segment, computing its UID and
// buffer.
func NewSource(id string, start, end geom.Point, flux, width float64) *Source {
	return &Source{
		ID:     id,
		UID:    hash.UID(id),
		Start:  start,
		End:    end,
		Flux:   flux,
		Width:  width,
		Buffer: segmentBuffer(start, end, width/2),
	}
}

// Length returns the planar length of the source.
func (s *Source) Length() float64 { return dist(s.Start, s.End) }

// Line returns the source as a line string.
func (s *Source) Line() geom.LineString { return geom.LineString{s.Start, s.End} }

// SegmentPolicy decides whether the segment between two consecutive
// vertices of a link becomes a source.
type SegmentPolicy func(start, end geom.Point) bool

// DropShortSegments keeps segments that are at least MinSegmentLength long.
func DropShortSegments(start, end geom.Point) bool {
	return dist(start, end) >= MinSegmentLength
}

// SourceSet is a set of sources together with a spatial index of their
// buffers.
type SourceSet struct {
	Sources []*Source
	Index   *SourceIndex
}

// NewSourceSet indexes the given sources.
func NewSourceSet(sources []*Source) *SourceSet {
	return &SourceSet{
		Sources: sources,
		Index:   NewSourceIndex(sources),
	}
}

// Sources decomposes every link that has an emissions flux into line
// sources, one for each pair of consecutive vertices that policy accepts.
// The segment index counts vertex pairs across all parts of a link.
// Pairs never span two parts. If policy is nil, DropShortSegments is used.
func (n *Network) Sources(policy SegmentPolicy) *SourceSet {
	if policy == nil {
		policy = DropShortSegments
	}
	var sources []*Source
	for _, l := range n.links {
		if l.Flux == nil {
			continue
		}
		seg := 0
		for _, part := range l.parts() {
			for i := 1; i < len(part); i++ {
				start, end := part[i-1], part[i]
				if policy(start, end) {
					id := fmt.Sprintf("%d_%d_%d", l.From, l.To, seg)
					sources = append(sources, NewSource(id, start, end, *l.Flux, l.Width))
				}
				seg++
			}
		}
	}
	return NewSourceSet(sources)
}

// segmentBuffer returns the polygon covering all points within r of the
// segment from a to b. The ends are rounded.
func segmentBuffer(a, b geom.Point, r float64) geom.Polygon {
	theta := math.Atan2(b.Y-a.Y, b.X-a.X)
	const n = 2 * bufferQuadSegs
	ring := make([]geom.Point, 0, 2*(n+1)+1)
	arc := func(c geom.Point, from float64) {
		for i := 0; i <= n; i++ {
			t := from + math.Pi*float64(i)/n
			ring = append(ring, geom.Point{X: c.X + r*math.Cos(t), Y: c.Y + r*math.Sin(t)})
		}
	}
	arc(b, theta-math.Pi/2) // right side, around the end, to the left side
	arc(a, theta+math.Pi/2) // left side, around the start, to the right side
	ring = append(ring, ring[0])
	return geom.Polygon{ring}
}

func dist(a, b geom.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
