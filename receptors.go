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
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
)

// Receptor layout defaults.
const (
	// DefaultReceptorSpacing is the distance [m] between neighboring
	// receptors along a source and in the background grid.
	DefaultReceptorSpacing = 200.
)

// DefaultReceptorLayers are the distances [m] of the receptor layers from
// the edge of the road.
var DefaultReceptorLayers = []float64{5, 20, 100}

// ErrEmptyStudyArea is returned when a study area is requested for a
// set with no sources.
var ErrEmptyStudyArea = errors.New("aerprep: study area is empty")

// Receptor is a location at which AERMOD computes concentrations.
type Receptor struct {
	ID string
	geom.Point
}

// LayeredReceptors places receptors on both sides of every source, in
// one layer for each of scales. Receptors in layer k lie
// scales[k] + width/2 from the source centerline.
func LayeredReceptors(sources []*Source, spacing float64, scales []float64) []Receptor {
	var o []Receptor
	for _, s := range sources {
		o = append(o, sourceReceptors(s, spacing, scales)...)
	}
	return o
}

// DensityScaledReceptors is like LayeredReceptors but gives sources with
// larger fluxes more layers. The number of layers for a source grows
// with the logarithm of its flux relative to the range of (positive)
// fluxes in sources, from one to len(scales).
func DensityScaledReceptors(sources []*Source, spacing float64, scales []float64) []Receptor {
	var logFlux []float64
	for _, s := range sources {
		if s.Flux > 0 {
			logFlux = append(logFlux, math.Log(s.Flux))
		}
	}
	var lnMin, diff float64
	if len(logFlux) > 0 {
		lnMin = floats.Min(logFlux)
		diff = floats.Max(logFlux) - lnMin
	}
	maxLayers := len(scales)
	var o []Receptor
	for _, s := range sources {
		n := numLayers(s.Flux, lnMin, diff, maxLayers)
		o = append(o, sourceReceptors(s, spacing, scales[:n])...)
	}
	return o
}

func numLayers(flux, lnMin, diff float64, maxLayers int) int {
	switch {
	case maxLayers == 0:
		return 0
	case flux <= 0:
		return 1
	case diff == 0:
		return maxLayers
	}
	n := 1 + int(math.Floor(float64(maxLayers)*(math.Log(flux)-lnMin)/diff))
	if n > maxLayers {
		return maxLayers
	}
	if n < 1 {
		return 1
	}
	return n
}

// sourceReceptors returns the receptors for one source, ordered by layer,
// then position along the source, then side.
func sourceReceptors(s *Source, spacing float64, scales []float64) []Receptor {
	l := s.Length()
	if l == 0 || spacing <= 0 {
		return nil
	}
	n := int(math.Floor(l/spacing)) + 1
	start := 0.5 * (l - spacing*float64(n-1))
	ux, uy := (s.End.X-s.Start.X)/l, (s.End.Y-s.Start.Y)/l
	// Side 0 is to the left of the direction of travel.
	normals := [2]geom.Point{{X: -uy, Y: ux}, {X: uy, Y: -ux}}

	o := make([]Receptor, 0, len(scales)*n*2)
	for layer, scale := range scales {
		d := scale + 0.5*s.Width
		for pos := 0; pos < n; pos++ {
			t := start + float64(pos)*spacing
			for side, nrm := range normals {
				o = append(o, Receptor{
					ID: fmt.Sprintf("%s_%d_%d_%d", s.ID, layer, pos, side),
					Point: geom.Point{
						X: s.Start.X + t*ux + d*nrm.X,
						Y: s.Start.Y + t*uy + d*nrm.Y,
					},
				})
			}
		}
	}
	return o
}

// ParseLayeredID splits the ID of a layered receptor into the ID of its
// source, its layer, its position along the source and its side.
func ParseLayeredID(id string) (sourceID string, layer, position, side int, err error) {
	parts := strings.Split(id, "_")
	if len(parts) < 4 {
		return "", 0, 0, 0, fmt.Errorf("aerprep: invalid layered receptor ID `%s`", id)
	}
	v := make([]int, 3)
	for i, p := range parts[len(parts)-3:] {
		if v[i], err = strconv.Atoi(p); err != nil {
			return "", 0, 0, 0, fmt.Errorf("aerprep: invalid layered receptor ID `%s`: %v", id, err)
		}
	}
	return strings.Join(parts[:len(parts)-3], "_"), v[0], v[1], v[2], nil
}

// StudyArea is the region that background receptors cover.
type StudyArea struct {
	// Hull is a convex polygon.
	Hull geom.Polygon
}

// NewStudyArea returns the convex hull of the sources, expanded by
// margin. It returns ErrEmptyStudyArea if there are no sources.
func NewStudyArea(sources []*Source, margin float64) (*StudyArea, error) {
	pts := make([]geom.Point, 0, 2*len(sources))
	for _, s := range sources {
		pts = append(pts, s.Start, s.End)
	}
	if len(pts) == 0 {
		return nil, ErrEmptyStudyArea
	}
	hull := convexHull(pts)
	if margin > 0 {
		const n = 4 * bufferQuadSegs
		var expanded []geom.Point
		for _, p := range hull {
			for i := 0; i < n; i++ {
				t := 2 * math.Pi * float64(i) / n
				expanded = append(expanded, geom.Point{X: p.X + margin*math.Cos(t), Y: p.Y + margin*math.Sin(t)})
			}
		}
		hull = convexHull(expanded)
	}
	if len(hull) < 3 {
		return nil, ErrEmptyStudyArea
	}
	return &StudyArea{Hull: geom.Polygon{hull}}, nil
}

// Bounds returns the bounding box of the study area.
func (a *StudyArea) Bounds() *geom.Bounds { return a.Hull.Bounds() }

// Contains reports whether p is strictly inside the study area.
func (a *StudyArea) Contains(p geom.Point) bool { return p.Within(a.Hull) == geom.Inside }

// convexHull returns the convex hull of pts in counter-clockwise order,
// without repeating the first point.
func convexHull(pts []geom.Point) []geom.Point {
	p := make([]geom.Point, len(pts))
	copy(p, pts)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	if len(p) < 3 {
		return p
	}
	cross := func(o, a, b geom.Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}
	h := make([]geom.Point, 0, 2*len(p))
	for _, pt := range p {
		for len(h) >= 2 && cross(h[len(h)-2], h[len(h)-1], pt) <= 0 {
			h = h[:len(h)-1]
		}
		h = append(h, pt)
	}
	lower := len(h) + 1
	for i := len(p) - 2; i >= 0; i-- {
		pt := p[i]
		for len(h) >= lower && cross(h[len(h)-2], h[len(h)-1], pt) <= 0 {
			h = h[:len(h)-1]
		}
		h = append(h, pt)
	}
	return h[:len(h)-1]
}

// GridReceptors places receptors on a regular lattice with the given
// spacing, centered on the bounding box of the study area, and keeps
// those strictly inside it.
func GridReceptors(area *StudyArea, spacing float64) []Receptor {
	if spacing <= 0 {
		return nil
	}
	b := area.Bounds()
	w, h := b.Max.X-b.Min.X, b.Max.Y-b.Min.Y
	numX := int(math.Floor(w/spacing)) + 1
	numY := int(math.Floor(h/spacing)) + 1
	xOffset := 0.5 * (w - spacing*float64(numX-1))
	yOffset := 0.5 * (h - spacing*float64(numY-1))
	var o []Receptor
	for i := 0; i < numX; i++ {
		x := b.Min.X + xOffset + float64(i)*spacing
		for j := 0; j < numY; j++ {
			p := geom.Point{X: x, Y: b.Min.Y + yOffset + float64(j)*spacing}
			if !area.Contains(p) {
				continue
			}
			o = append(o, Receptor{ID: fmt.Sprintf("grid_%d_%d", i, j), Point: p})
		}
	}
	return o
}

// DedupeReceptors removes receptors whose location has already been seen,
// keeping the first one.
func DedupeReceptors(receptors []Receptor) []Receptor {
	seen := make(map[geom.Point]bool, len(receptors))
	o := make([]Receptor, 0, len(receptors))
	for _, r := range receptors {
		if seen[r.Point] {
			continue
		}
		seen[r.Point] = true
		o = append(o, r)
	}
	return o
}
