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
	"testing"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestLayeredReceptors(t *testing.T) {
	s := NewSource("1_2_0", geom.Point{X: 0, Y: 0}, geom.Point{X: 1000, Y: 0}, 1e-6, 10)
	rs := LayeredReceptors([]*Source{s}, DefaultReceptorSpacing, DefaultReceptorLayers)
	if len(rs) != 36 {
		t.Fatalf("have %d receptors, want 36", len(rs))
	}
	i := 0
	for layer, scale := range DefaultReceptorLayers {
		d := scale + 5
		for pos := 0; pos < 6; pos++ {
			for side, y := range []float64{d, -d} {
				r := rs[i]
				wantID := fmt.Sprintf("1_2_0_%d_%d_%d", layer, pos, side)
				if r.ID != wantID {
					t.Errorf("receptor %d: have ID %s, want %s", i, r.ID, wantID)
				}
				want := geom.Point{X: float64(pos) * 200, Y: y}
				if !scalar.EqualWithinAbsOrRel(r.X, want.X, 1e-9, 1e-9) ||
					!scalar.EqualWithinAbsOrRel(r.Y, want.Y, 1e-9, 1e-9) {
					t.Errorf("receptor %s: have %v, want %v", r.ID, r.Point, want)
				}
				i++
			}
		}
	}
}

func TestLayeredReceptors_centered(t *testing.T) {
	// 450 m long: 3 receptors per side, starting 25 m from the start.
	s := NewSource("5_6_1", geom.Point{X: 100, Y: 100}, geom.Point{X: 100, Y: 550}, 1, 4)
	rs := LayeredReceptors([]*Source{s}, 200, []float64{8})
	if len(rs) != 6 {
		t.Fatalf("have %d receptors, want 6", len(rs))
	}
	// Travel is in the +y direction, so the left side is at smaller x.
	want := []geom.Point{
		{X: 90, Y: 125}, {X: 110, Y: 125},
		{X: 90, Y: 325}, {X: 110, Y: 325},
		{X: 90, Y: 525}, {X: 110, Y: 525},
	}
	for i, r := range rs {
		if !scalar.EqualWithinAbsOrRel(r.X, want[i].X, 1e-9, 1e-9) ||
			!scalar.EqualWithinAbsOrRel(r.Y, want[i].Y, 1e-9, 1e-9) {
			t.Errorf("receptor %s: have %v, want %v", r.ID, r.Point, want[i])
		}
	}
}

func TestLayeredReceptors_empty(t *testing.T) {
	if rs := LayeredReceptors(nil, DefaultReceptorSpacing, DefaultReceptorLayers); len(rs) != 0 {
		t.Errorf("have %d receptors, want 0", len(rs))
	}
}

func TestParseLayeredID(t *testing.T) {
	src, layer, pos, side, err := ParseLayeredID("12_345_6_2_14_1")
	if err != nil {
		t.Fatal(err)
	}
	if src != "12_345_6" || layer != 2 || pos != 14 || side != 1 {
		t.Errorf("have %s, %d, %d, %d", src, layer, pos, side)
	}
	for _, id := range []string{"grid_1_2", "1_2_x_0_0", ""} {
		if _, _, _, _, err := ParseLayeredID(id); err == nil {
			t.Errorf("%s: expected an error", id)
		}
	}
}

func TestDensityScaledReceptors(t *testing.T) {
	mk := func(id string, f float64) *Source {
		return NewSource(id, geom.Point{X: 0, Y: 0}, geom.Point{X: 400, Y: 0}, f, 10)
	}
	// 3 positions and 2 sides give 6 receptors per layer.
	for _, test := range []struct {
		name    string
		sources []*Source
		layers  []int
	}{
		{
			name:    "range",
			sources: []*Source{mk("a", 1e-6), mk("b", 1e-5), mk("c", 1e-4)},
			layers:  []int{1, 2, 3},
		},
		{
			name:    "equal",
			sources: []*Source{mk("a", 1e-6), mk("b", 1e-6)},
			layers:  []int{3, 3},
		},
		{
			name:    "nonpositive",
			sources: []*Source{mk("a", 0), mk("b", 1e-6), mk("c", 1e-2)},
			layers:  []int{1, 1, 3},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			rs := DensityScaledReceptors(test.sources, 200, DefaultReceptorLayers)
			count := make(map[string]int)
			maxLayer := make(map[string]int)
			for _, r := range rs {
				src, layer, _, _, err := ParseLayeredID(r.ID)
				if err != nil {
					t.Fatal(err)
				}
				count[src]++
				if layer > maxLayer[src] {
					maxLayer[src] = layer
				}
			}
			for i, s := range test.sources {
				if count[s.ID] != 6*test.layers[i] {
					t.Errorf("source %s: have %d receptors, want %d", s.ID, count[s.ID], 6*test.layers[i])
				}
				if maxLayer[s.ID] != test.layers[i]-1 {
					t.Errorf("source %s: have max layer %d, want %d", s.ID, maxLayer[s.ID], test.layers[i]-1)
				}
			}
		})
	}
}

func TestNumLayers(t *testing.T) {
	lnMin := math.Log(1e-6)
	diff := math.Log(1e-3) - lnMin
	for _, test := range []struct {
		flux float64
		want int
	}{
		{flux: 1e-6, want: 1},
		{flux: 2e-5, want: 2},
		{flux: 3e-4, want: 3},
		{flux: 1e-3, want: 3},
		{flux: -1, want: 1},
	} {
		if got := numLayers(test.flux, lnMin, diff, 3); got != test.want {
			t.Errorf("flux %g: have %d layers, want %d", test.flux, got, test.want)
		}
	}
	if got := numLayers(1, 0, 0, 3); got != 3 {
		t.Errorf("equal fluxes: have %d layers, want 3", got)
	}
}

func TestNewStudyArea(t *testing.T) {
	if _, err := NewStudyArea(nil, 200); err != ErrEmptyStudyArea {
		t.Errorf("have error %v, want ErrEmptyStudyArea", err)
	}
	sources := testSources()
	area, err := NewStudyArea(sources, 200)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sources {
		for _, p := range []geom.Point{s.Start, s.End} {
			if !area.Contains(p) {
				t.Errorf("study area does not contain %v", p)
			}
		}
	}
	b := area.Bounds()
	want := &geom.Bounds{Min: geom.Point{X: -200, Y: -205}, Max: geom.Point{X: 1200, Y: 1000}}
	for _, v := range [][2]float64{
		{b.Min.X, want.Min.X}, {b.Min.Y, want.Min.Y},
		{b.Max.X, want.Max.X}, {b.Max.Y, want.Max.Y},
	} {
		if !scalar.EqualWithinAbsOrRel(v[0], v[1], 1e-9, 1e-9) {
			t.Errorf("bounds: have %v, want %v", b, want)
			break
		}
	}
	// Points farther than the margin from every source are outside.
	for _, p := range []geom.Point{{X: 500, Y: -500}, {X: -300, Y: 0}, {X: 1000, Y: 1100}} {
		if area.Contains(p) {
			t.Errorf("study area contains %v", p)
		}
	}
}

func TestConvexHull(t *testing.T) {
	pts := []geom.Point{
		{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 1, Y: 0}, {X: 0, Y: 2},
	}
	want := []geom.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}
	got := convexHull(pts)
	if len(got) != len(want) {
		t.Fatalf("have %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("have %v, want %v", got, want)
			break
		}
	}
}

func TestGridReceptors(t *testing.T) {
	area := &StudyArea{Hull: geom.Polygon{{
		{X: -510, Y: -310}, {X: 510, Y: -310}, {X: 510, Y: 310}, {X: -510, Y: 310},
	}}}
	rs := GridReceptors(area, 200)
	if len(rs) != 24 {
		t.Fatalf("have %d receptors, want 24", len(rs))
	}
	if rs[0].ID != "grid_0_0" || rs[0].Point != (geom.Point{X: -500, Y: -300}) {
		t.Errorf("first receptor: have %s at %v", rs[0].ID, rs[0].Point)
	}
	if rs[1].ID != "grid_0_1" || rs[1].Point != (geom.Point{X: -500, Y: -100}) {
		t.Errorf("second receptor: have %s at %v", rs[1].ID, rs[1].Point)
	}
	// The lattice is centered: every receptor has a mirror image.
	have := make(map[geom.Point]bool)
	for _, r := range rs {
		have[r.Point] = true
	}
	for _, r := range rs {
		for _, m := range []geom.Point{{X: -r.X, Y: r.Y}, {X: r.X, Y: -r.Y}} {
			if !have[m] {
				t.Errorf("receptor %s at %v has no mirror image at %v", r.ID, r.Point, m)
			}
		}
	}
}

func TestGridReceptors_clipped(t *testing.T) {
	// Only lattice points strictly inside the triangle are kept.
	area := &StudyArea{Hull: geom.Polygon{{
		{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 0, Y: 1000},
	}}}
	rs := GridReceptors(area, 250)
	for _, r := range rs {
		if r.X+r.Y >= 1000 || r.X <= 0 || r.Y <= 0 {
			t.Errorf("receptor %s at %v is not inside the study area", r.ID, r.Point)
		}
	}
	// Interior lattice points: x, y in {250, 500, 750} with x+y < 1000.
	if len(rs) != 3 {
		t.Errorf("have %d receptors, want 3", len(rs))
	}
}

func TestDedupeReceptors(t *testing.T) {
	rs := []Receptor{
		{ID: "a", Point: geom.Point{X: 1, Y: 1}},
		{ID: "b", Point: geom.Point{X: 2, Y: 1}},
		{ID: "c", Point: geom.Point{X: 1, Y: 1}},
		{ID: "d", Point: geom.Point{X: 3, Y: 1}},
	}
	got := DedupeReceptors(rs)
	var ids string
	for _, r := range got {
		ids += r.ID
	}
	if ids != "abd" {
		t.Errorf("have %s, want abd", ids)
	}
}
