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
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	goshp "github.com/jonas-p/go-shp"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
)

func testSR(t *testing.T) *proj.SR {
	sr, err := proj.Parse(DefaultSR)
	if err != nil {
		t.Fatal(err)
	}
	return sr
}

// writeTestLinks writes a shapefile with two links, the second of which
// has two parts.
func writeTestLinks(t *testing.T, dir string, fields ...goshp.Field) string {
	fname := filepath.Join(dir, "links.shp")
	e, err := shp.NewEncoderFromFields(fname, goshp.POLYLINE, fields...)
	if err != nil {
		t.Fatal(err)
	}
	rows := []struct {
		g    geom.MultiLineString
		vals []interface{}
	}{
		{
			g:    geom.MultiLineString{{{X: 0, Y: 0}, {X: 1000, Y: 0}}},
			vals: []interface{}{1, 2, 2.},
		},
		{
			g: geom.MultiLineString{
				{{X: 0, Y: 500}, {X: 300, Y: 500}},
				{{X: 300, Y: 600}, {X: 300, Y: 900}},
			},
			vals: []interface{}{2, 3, 1.},
		},
	}
	for _, r := range rows {
		if err := e.EncodeFields(r.g, r.vals[:len(fields)]...); err != nil {
			t.Fatal(err)
		}
	}
	e.Close()
	if err := ioutil.WriteFile(filepath.Join(dir, "links.prj"), []byte(DefaultSR), 0644); err != nil {
		t.Fatal(err)
	}
	return fname
}

func TestReadLinkShapefile(t *testing.T) {
	dir, err := ioutil.TempDir("", "aerprep_links")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	fname := writeTestLinks(t, dir,
		goshp.NumberField("A_NODE", 10),
		goshp.NumberField("B_NODE", 10),
		goshp.FloatField("#LANES", 10, 2),
	)

	n, err := ReadLinkShapefile(fname, testSR(t), DefaultLaneWidth, DefaultLinkColumns)
	if err != nil {
		t.Fatal(err)
	}
	links := n.Links()
	if len(links) != 2 {
		t.Fatalf("have %d links, want 2", len(links))
	}
	if links[0].LinkKey != (LinkKey{From: 1, To: 2}) || links[1].LinkKey != (LinkKey{From: 2, To: 3}) {
		t.Errorf("wrong link keys: %v, %v", links[0].LinkKey, links[1].LinkKey)
	}
	if !scalar.EqualWithinAbsOrRel(links[0].Width, 2*DefaultLaneWidth, 1e-10, 1e-10) {
		t.Errorf("width: have %g, want %g", links[0].Width, 2*DefaultLaneWidth)
	}
	if !scalar.EqualWithinAbsOrRel(links[0].Length(), 1000, 1e-6, 1e-6) {
		t.Errorf("length: have %g, want 1000", links[0].Length())
	}
	if p := links[1].parts(); len(p) != 2 {
		t.Errorf("have %d parts, want 2", len(p))
	}
	if links[0].Flux != nil {
		t.Error("flux should be nil before emissions are merged")
	}
}

func TestReadLinkShapefile_missingColumn(t *testing.T) {
	dir, err := ioutil.TempDir("", "aerprep_links")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	fname := writeTestLinks(t, dir,
		goshp.NumberField("A_NODE", 10),
		goshp.NumberField("B_NODE", 10),
	)
	_, err = ReadLinkShapefile(fname, testSR(t), DefaultLaneWidth, DefaultLinkColumns)
	mc, ok := err.(*MissingColumnError)
	if !ok {
		t.Fatalf("have error %v, want a MissingColumnError", err)
	}
	if mc.Column != "#LANES" {
		t.Errorf("missing column: have %s, want #LANES", mc.Column)
	}
}

const testLinkGeoJSON = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"from":10,"to":11,"lanes":3},
 "geometry":{"type":"LineString","coordinates":[[0,0],[100,0],[100,100]]}},
{"type":"Feature","properties":{"from":11,"to":12,"lanes":1},
 "geometry":{"type":"MultiLineString","coordinates":[[[0,0],[0,50]],[[10,50],[10,80]]]}},
{"type":"Feature","properties":{"from":10,"to":11,"lanes":2},
 "geometry":{"type":"LineString","coordinates":[[0,0],[200,0]]}}
]}`

func TestReadLinkGeoJSON(t *testing.T) {
	sr := testSR(t)
	cols := LinkColumns{FromNode: "from", ToNode: "to", Lanes: "lanes"}
	n, err := ReadLinkGeoJSON(strings.NewReader(testLinkGeoJSON), sr, sr, DefaultLaneWidth, cols)
	if err != nil {
		t.Fatal(err)
	}
	links := n.Links()
	if len(links) != 2 {
		t.Fatalf("have %d links, want 2", len(links))
	}
	// The third feature replaces the first.
	l, ok := n.Link(LinkKey{From: 10, To: 11})
	if !ok {
		t.Fatal("missing link 10-11")
	}
	if l != links[0] {
		t.Error("replaced link should keep its position")
	}
	if l.Lanes != 2 {
		t.Errorf("lanes: have %g, want 2", l.Lanes)
	}
	if !scalar.EqualWithinAbsOrRel(l.Length(), 200, 1e-6, 1e-6) {
		t.Errorf("length: have %g, want 200", l.Length())
	}
	if _, ok := links[1].Geometry.(geom.MultiLineString); !ok {
		t.Errorf("link 11-12 has geometry type %T", links[1].Geometry)
	}

	_, err = ReadLinkGeoJSON(strings.NewReader(testLinkGeoJSON), sr, sr, DefaultLaneWidth, DefaultLinkColumns)
	if _, ok := err.(*MissingColumnError); !ok {
		t.Errorf("have error %v, want a MissingColumnError", err)
	}
}

func TestParseNodeID(t *testing.T) {
	for s, want := range map[string]int64{"12": 12, " 7 ": 7, "15.0": 15, "-3": -3} {
		got, err := parseNodeID(s)
		if err != nil {
			t.Errorf("%s: %v", s, err)
		}
		if got != want {
			t.Errorf("%s: have %d, want %d", s, got, want)
		}
	}
	for _, s := range []string{"", "1.5", "a"} {
		if _, err := parseNodeID(s); err == nil {
			t.Errorf("%s: expected an error", s)
		}
	}
}

func TestNewLink_invalidLanes(t *testing.T) {
	n := NewNetwork(nil, DefaultLaneWidth)
	g := geom.LineString{{X: 0, Y: 0}, {X: 100, Y: 0}}
	for _, lanes := range []string{"NaN", "Inf", "-Inf", "+Inf", "-1"} {
		l, err := n.newLink(g, "1", "2", lanes, nil)
		if errors.Cause(err) != errInvalidNumber {
			t.Errorf("%s: have link %+v and error %v, want errInvalidNumber", lanes, l, err)
		}
	}
	l, err := n.newLink(g, "1", "2", "0", nil)
	if err != nil {
		t.Fatal(err)
	}
	if l.Width != 0 {
		t.Errorf("width: have %g, want 0", l.Width)
	}

	const nanLanes = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"from":1,"to":2,"lanes":"NaN"},
 "geometry":{"type":"LineString","coordinates":[[0,0],[100,0]]}}]}`
	sr := testSR(t)
	cols := LinkColumns{FromNode: "from", ToNode: "to", Lanes: "lanes"}
	if _, err := ReadLinkGeoJSON(strings.NewReader(nanLanes), sr, sr, DefaultLaneWidth, cols); errors.Cause(err) != errInvalidNumber {
		t.Errorf("have error %v, want errInvalidNumber", err)
	}
}
