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
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// ExportSources writes sources to the shapefile fileName, along with a
// .prj file holding the proj4 spatial reference.
func ExportSources(fileName, proj4 string, sources []*Source) error {
	fileBase := shapefileBase(fileName)
	fields := []goshp.Field{
		goshp.StringField("sourceID", 64),
		goshp.StringField("UID", 12),
		goshp.FloatField("flux", 20, 15),
		goshp.FloatField("width", 12, 4),
	}
	e, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POLYLINE, fields...)
	if err != nil {
		return fmt.Errorf("aerprep: creating source shapefile: %v", err)
	}
	for _, s := range sources {
		err = e.EncodeFields(geom.MultiLineString{s.Line()}, s.ID, s.UID, s.Flux, s.Width)
		if err != nil {
			e.Close()
			return fmt.Errorf("aerprep: writing source shapefile: %v", err)
		}
	}
	e.Close()
	return writePrj(fileBase, proj4)
}

// ExportReceptors writes receptors to the shapefile fileName, along with a
// .prj file holding the proj4 spatial reference.
func ExportReceptors(fileName, proj4 string, receptors []Receptor) error {
	fileBase := shapefileBase(fileName)
	e, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POINT, goshp.StringField("receptorID", 80))
	if err != nil {
		return fmt.Errorf("aerprep: creating receptor shapefile: %v", err)
	}
	for _, r := range receptors {
		if err = e.EncodeFields(r.Point, r.ID); err != nil {
			e.Close()
			return fmt.Errorf("aerprep: writing receptor shapefile: %v", err)
		}
	}
	e.Close()
	return writePrj(fileBase, proj4)
}

// shapefileBase removes the extension from fileName and removes any
// existing files that make up the shapefile.
func shapefileBase(fileName string) string {
	fileBase := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(fileBase + ext)
	}
	return fileBase
}

func writePrj(fileBase, proj4 string) error {
	f, err := os.Create(fileBase + ".prj")
	if err != nil {
		return fmt.Errorf("aerprep: creating prj file: %v", err)
	}
	if _, err = fmt.Fprint(f, proj4); err != nil {
		f.Close()
		return fmt.Errorf("aerprep: writing prj file: %v", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("aerprep: closing prj file: %v", err)
	}
	return nil
}
