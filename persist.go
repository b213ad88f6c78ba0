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
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/ctessum/geom"
	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// SaveSources writes sources to w as a GeoJSON FeatureCollection with
// one LineString feature per source.
func SaveSources(w io.Writer, sources []*Source) error {
	fc := geojson.NewFeatureCollection()
	for _, s := range sources {
		f := geojson.NewLineStringFeature([][]float64{{s.Start.X, s.Start.Y}, {s.End.X, s.End.Y}})
		f.SetProperty("sourceID", s.ID)
		f.SetProperty("UID", s.UID)
		f.SetProperty("x1", s.Start.X)
		f.SetProperty("y1", s.Start.Y)
		f.SetProperty("x2", s.End.X)
		f.SetProperty("y2", s.End.Y)
		f.SetProperty("flux", s.Flux)
		f.SetProperty("width", s.Width)
		f.SetProperty("buffers", wkt.MarshalString(toOrbPolygon(s.Buffer)))
		fc.AddFeature(f)
	}
	return writeFeatureCollection(w, fc)
}

// LoadSources reads sources written by SaveSources and indexes them.
func LoadSources(r io.Reader) (*SourceSet, error) {
	fc, err := readFeatureCollection(r)
	if err != nil {
		return nil, err
	}
	sources := make([]*Source, len(fc.Features))
	for i, f := range fc.Features {
		s := new(Source)
		if s.ID, err = f.PropertyString("sourceID"); err != nil {
			return nil, fmt.Errorf("aerprep: loading source %d: %v", i, err)
		}
		if s.UID, err = f.PropertyString("UID"); err != nil {
			return nil, fmt.Errorf("aerprep: loading source %s: %v", s.ID, err)
		}
		vals := make([]float64, 6)
		for j, name := range []string{"x1", "y1", "x2", "y2", "flux", "width"} {
			if vals[j], err = f.PropertyFloat64(name); err != nil {
				return nil, fmt.Errorf("aerprep: loading source %s: %v", s.ID, err)
			}
		}
		s.Start = geom.Point{X: vals[0], Y: vals[1]}
		s.End = geom.Point{X: vals[2], Y: vals[3]}
		s.Flux, s.Width = vals[4], vals[5]

		b, err := f.PropertyString("buffers")
		if err != nil {
			return nil, fmt.Errorf("aerprep: loading source %s: %v", s.ID, err)
		}
		poly, err := wkt.UnmarshalPolygon(b)
		if err != nil {
			return nil, fmt.Errorf("aerprep: loading buffer of source %s: %v", s.ID, err)
		}
		s.Buffer = fromOrbPolygon(poly)
		sources[i] = s
	}
	return NewSourceSet(sources), nil
}

// SaveReceptors writes receptors to w as a GeoJSON FeatureCollection with
// one Point feature per receptor.
func SaveReceptors(w io.Writer, receptors []Receptor) error {
	fc := geojson.NewFeatureCollection()
	for _, r := range receptors {
		f := geojson.NewPointFeature([]float64{r.X, r.Y})
		f.SetProperty("receptorID", r.ID)
		fc.AddFeature(f)
	}
	return writeFeatureCollection(w, fc)
}

// LoadReceptors reads receptors written by SaveReceptors.
func LoadReceptors(r io.Reader) ([]Receptor, error) {
	fc, err := readFeatureCollection(r)
	if err != nil {
		return nil, err
	}
	o := make([]Receptor, len(fc.Features))
	for i, f := range fc.Features {
		if o[i].ID, err = f.PropertyString("receptorID"); err != nil {
			return nil, fmt.Errorf("aerprep: loading receptor %d: %v", i, err)
		}
		if f.Geometry == nil || f.Geometry.Type != geojson.GeometryPoint || len(f.Geometry.Point) < 2 {
			return nil, fmt.Errorf("aerprep: receptor %s does not have a point geometry", o[i].ID)
		}
		o[i].Point = geom.Point{X: f.Geometry.Point[0], Y: f.Geometry.Point[1]}
	}
	return o, nil
}

func writeFeatureCollection(w io.Writer, fc *geojson.FeatureCollection) error {
	b, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("aerprep: encoding GeoJSON: %v", err)
	}
	if _, err = w.Write(b); err != nil {
		return fmt.Errorf("aerprep: writing GeoJSON: %v", err)
	}
	return nil
}

func readFeatureCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("aerprep: reading GeoJSON: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("aerprep: decoding GeoJSON: %v", err)
	}
	return fc, nil
}

func toOrbPolygon(p geom.Polygon) orb.Polygon {
	o := make(orb.Polygon, len(p))
	for i, ring := range p {
		o[i] = make(orb.Ring, len(ring))
		for j, pt := range ring {
			o[i][j] = orb.Point{pt.X, pt.Y}
		}
	}
	return o
}

func fromOrbPolygon(p orb.Polygon) geom.Polygon {
	o := make(geom.Polygon, len(p))
	for i, ring := range p {
		r := make([]geom.Point, len(ring))
		for j, pt := range ring {
			r[j] = geom.Point{X: pt[0], Y: pt[1]}
		}
		o[i] = r
	}
	return o
}
