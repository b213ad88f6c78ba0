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

// Package aerprep prepares road-network line sources and receptor
// layouts for the AERMOD dispersion model.
package aerprep

import (
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"
)

// Version gives the version number.
const Version = "1.0.0"

// Physical constants and defaults.
const (
	// SecondsPerDay converts daily emissions totals to rates.
	SecondsPerDay = 86400.

	// FeetToMeters converts lane widths given in feet.
	FeetToMeters = 0.3048

	// DefaultLaneWidth is a 12 foot lane in meters.
	DefaultLaneWidth = 12 * FeetToMeters

	// DefaultPollutantID is the MOVES pollutant ID for primary PM2.5.
	DefaultPollutantID = 110

	// DefaultSR is EPSG:3665, NAD83(HARN) / Texas Centric Albers Equal Area.
	DefaultSR = "+proj=aea +lat_1=27.5 +lat_2=35 +lat_0=18 +lon_0=-100 +x_0=1500000 +y_0=6000000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs"

	// LongLatSR is the spatial reference assumed for GeoJSON link inputs.
	LongLatSR = "+proj=longlat +datum=WGS84 +no_defs"
)

// LinkColumns names the attributes of the link geometry dataset.
type LinkColumns struct {
	FromNode, ToNode, Lanes string
}

// DefaultLinkColumns are the attribute names used by DynusT network exports.
var DefaultLinkColumns = LinkColumns{FromNode: "A_NODE", ToNode: "B_NODE", Lanes: "#LANES"}

func (c LinkColumns) names() []string { return []string{c.FromNode, c.ToNode, c.Lanes} }

// MissingColumnError is returned when an input dataset lacks a required
// column.
type MissingColumnError struct {
	Dataset string
	Column  string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("aerprep: %s dataset is missing required column `%s`", e.Dataset, e.Column)
}

// errInvalidNumber is wrapped by errors for input values that are not
// finite or are out of range.
var errInvalidNumber = fmt.Errorf("aerprep: invalid number")

// LinkKey identifies a directed link.
type LinkKey struct {
	From, To int64
}

func (k LinkKey) String() string { return fmt.Sprintf("%d-%d", k.From, k.To) }

// Link is a directed road network edge.
type Link struct {
	LinkKey

	// Geometry is a geom.LineString or geom.MultiLineString in the
	// network spatial reference.
	Geometry geom.Linear

	Lanes float64

	// Width is the road width: Lanes times the lane width.
	Width float64

	// Flux is the emission flux [mass/m²/s]. It is nil until
	// emissions have been merged.
	Flux *float64
}

// Length returns the planar length of the link.
func (l *Link) Length() float64 { return l.Geometry.Length() }

// parts returns the polyline parts of the link geometry.
func (l *Link) parts() []geom.LineString {
	switch g := l.Geometry.(type) {
	case geom.LineString:
		return []geom.LineString{g}
	case geom.MultiLineString:
		return g
	}
	return nil
}

// Network is a directed road network. Links are kept in the order in which
// their key was first added.
type Network struct {
	SR        *proj.SR
	LaneWidth float64

	links []*Link
	index map[LinkKey]int
}

// NewNetwork creates an empty network in the given planar spatial reference.
func NewNetwork(sr *proj.SR, laneWidth float64) *Network {
	return &Network{
		SR:        sr,
		LaneWidth: laneWidth,
		index:     make(map[LinkKey]int),
	}
}

// Add adds a link to the network, replacing any link with the same
// endpoints.
func (n *Network) Add(l *Link) {
	if i, ok := n.index[l.LinkKey]; ok {
		n.links[i] = l
		return
	}
	n.index[l.LinkKey] = len(n.links)
	n.links = append(n.links, l)
}

// Link returns the link with the given key.
func (n *Network) Link(k LinkKey) (*Link, bool) {
	i, ok := n.index[k]
	if !ok {
		return nil, false
	}
	return n.links[i], true
}

// Links returns all links in the network.
func (n *Network) Links() []*Link { return n.links }

// newLink creates a link from raw attribute values, projecting g with trans.
func (n *Network) newLink(g geom.Geom, from, to, lanes string, trans proj.Transformer) (*Link, error) {
	var err error
	l := new(Link)
	if l.From, err = parseNodeID(from); err != nil {
		return nil, err
	}
	if l.To, err = parseNodeID(to); err != nil {
		return nil, err
	}
	if l.Lanes, err = strconv.ParseFloat(strings.TrimSpace(lanes), 64); err != nil {
		return nil, errors.Wrapf(err, "link %s lane count", l.LinkKey)
	}
	if math.IsNaN(l.Lanes) || math.IsInf(l.Lanes, 0) || l.Lanes < 0 {
		return nil, errors.Wrapf(errInvalidNumber, "link %s lane count `%s`", l.LinkKey, strings.TrimSpace(lanes))
	}
	l.Width = l.Lanes * n.LaneWidth
	if trans != nil {
		if g, err = g.Transform(trans); err != nil {
			return nil, errors.Wrapf(err, "projecting link %s", l.LinkKey)
		}
	}
	lin, ok := g.(geom.Linear)
	if !ok {
		return nil, fmt.Errorf("aerprep: link %s has invalid geometry type %T", l.LinkKey, g)
	}
	l.Geometry = lin
	return l, nil
}

// parseNodeID parses a node identifier, which may have been stored as a
// floating point number.
func parseNodeID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("aerprep: invalid node ID `%s`", s)
	}
	return int64(f), nil
}

// ReadLinkShapefile reads the link geometry shapefile at path and projects
// it to sr using the projection in the accompanying .prj file.
func ReadLinkShapefile(path string, sr *proj.SR, laneWidth float64, cols LinkColumns) (*Network, error) {
	f, err := shp.NewDecoder(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening link shapefile %s", path)
	}
	defer f.Close()

	have := make(map[string]bool)
	for _, fld := range f.Fields() {
		have[strings.ToLower(fld.String())] = true
	}
	for _, c := range cols.names() {
		if !have[strings.ToLower(c)] {
			return nil, &MissingColumnError{Dataset: "link geometry", Column: c}
		}
	}

	inSR, err := f.SR()
	if err != nil {
		return nil, errors.Wrapf(err, "reading projection of link shapefile %s", path)
	}
	trans, err := inSR.NewTransform(sr)
	if err != nil {
		return nil, errors.Wrap(err, "creating link projection transform")
	}

	n := NewNetwork(sr, laneWidth)
	for {
		g, fields, more := f.DecodeRowFields(cols.names()...)
		if !more {
			break
		}
		l, err := n.newLink(g, fields[cols.FromNode], fields[cols.ToNode], fields[cols.Lanes], trans)
		if err != nil {
			return nil, err
		}
		n.Add(l)
	}
	if err := f.Error(); err != nil {
		return nil, errors.Wrapf(err, "reading link shapefile %s", path)
	}
	return n, nil
}

// ReadLinkGeoJSON reads a GeoJSON FeatureCollection of links from r,
// whose coordinates are in inSR, and projects them to sr.
func ReadLinkGeoJSON(r io.Reader, inSR, sr *proj.SR, laneWidth float64, cols LinkColumns) (*Network, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading link GeoJSON")
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, errors.Wrap(err, "decoding link GeoJSON")
	}
	trans, err := inSR.NewTransform(sr)
	if err != nil {
		return nil, errors.Wrap(err, "creating link projection transform")
	}
	n := NewNetwork(sr, laneWidth)
	for i, f := range fc.Features {
		vals := make([]string, 3)
		for j, c := range cols.names() {
			v, ok := f.Properties[c]
			if !ok {
				return nil, &MissingColumnError{Dataset: "link geometry", Column: c}
			}
			vals[j] = fmt.Sprint(v)
		}
		g, err := linearFromGeoJSON(f.Geometry)
		if err != nil {
			return nil, errors.Wrapf(err, "link feature %d", i)
		}
		l, err := n.newLink(g, vals[0], vals[1], vals[2], trans)
		if err != nil {
			return nil, err
		}
		n.Add(l)
	}
	return n, nil
}

func linearFromGeoJSON(g *geojson.Geometry) (geom.Geom, error) {
	if g == nil {
		return nil, fmt.Errorf("aerprep: missing geometry")
	}
	switch g.Type {
	case geojson.GeometryLineString:
		return lineFromCoords(g.LineString), nil
	case geojson.GeometryMultiLineString:
		ml := make(geom.MultiLineString, len(g.MultiLineString))
		for i, c := range g.MultiLineString {
			ml[i] = lineFromCoords(c)
		}
		return ml, nil
	default:
		return nil, fmt.Errorf("aerprep: unsupported link geometry type %s", g.Type)
	}
}

func lineFromCoords(c [][]float64) geom.LineString {
	l := make(geom.LineString, len(c))
	for i, xy := range c {
		l[i] = geom.Point{X: xy[0], Y: xy[1]}
	}
	return l
}
