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
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// AERMOD record constants.
const (
	// SourceHeight is the release height [m] of road sources.
	SourceHeight = 1.4

	// ReceptorHeight is the flagpole height [m] of receptors.
	ReceptorHeight = 1.5

	// ReceptorsFileName is the name of the file that holds the
	// receptor records shared by all control files.
	ReceptorsFileName = "receptors.txt"

	// DefaultSourceGroupSize is the default number of sources in
	// each control file.
	DefaultSourceGroupSize = 1000
)

// formatNumber formats v with the fewest digits that represent it exactly,
// switching to exponential notation only for very large or small values.
func formatNumber(v float64) string {
	if a := math.Abs(v); a == 0 || (a >= 1e-4 && a < 1e16) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// SourceLocationRecords returns an "SO LOCATION" record for each source.
func SourceLocationRecords(sources []*Source) []string {
	o := make([]string, len(sources))
	for i, s := range sources {
		o[i] = fmt.Sprintf("SO LOCATION %s LINE %s %s %s %s", s.UID,
			formatNumber(s.Start.X), formatNumber(s.Start.Y),
			formatNumber(s.End.X), formatNumber(s.End.Y))
	}
	return o
}

// SourceParamRecords returns an "SO SRCPARAM" record for each source.
func SourceParamRecords(sources []*Source) []string {
	o := make([]string, len(sources))
	for i, s := range sources {
		o[i] = fmt.Sprintf("SO SRCPARAM %s %s %s %s", s.UID,
			formatNumber(s.Flux), formatNumber(SourceHeight), formatNumber(s.Width))
	}
	return o
}

// UrbanSourceRecords returns an "SO URBANSRC" record for each source.
func UrbanSourceRecords(sources []*Source) []string {
	o := make([]string, len(sources))
	for i, s := range sources {
		o[i] = "SO URBANSRC " + s.UID
	}
	return o
}

// ReceptorRecords returns an "RE DISCCART" record for each receptor.
func ReceptorRecords(receptors []Receptor) []string {
	o := make([]string, len(receptors))
	for i, r := range receptors {
		o[i] = fmt.Sprintf("RE DISCCART %.5f %.5f %s", r.X, r.Y, formatNumber(ReceptorHeight))
	}
	return o
}

// ControlFile holds the fields available to a control-file template.
type ControlFile struct {
	// Title is the name of the control file without extension.
	Title          string
	Pollutant      string
	Population     int
	SourceLocation string
	SourceParam    string
	UrbanSource    string
	ReceptorCoords string

	// PostFile is the name of the AERMOD output file.
	PostFile string

	// Meteorology gives the ME pathway values. It is the zero value
	// when the Assembler has no meteorology.
	Meteorology
}

// FileCreator creates a named output file.
type FileCreator func(name string) (io.WriteCloser, error)

// DirCreator returns a FileCreator that creates files in a local
// directory, creating it if necessary.
func DirCreator(dir string) FileCreator {
	return func(name string) (io.WriteCloser, error) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
		return os.Create(filepath.Join(dir, name))
	}
}

// Assembler writes AERMOD control files.
type Assembler struct {
	// Title is the prefix of control file names.
	Title string

	Pollutant  string
	Population int

	// GroupSize is the number of sources in each control file.
	// If zero, DefaultSourceGroupSize is used.
	GroupSize int

	// Template is rendered with a ControlFile to create each control
	// file. If nil, control files hold only the source and receptor
	// pathway records.
	Template *template.Template

	// Meteorology, if not nil, is made available to Template.
	Meteorology *Meteorology
}

// Write writes the receptor records to ReceptorsFileName and one control
// file for each group of sources, named "{title}_{start}-{end}.inp".
// It returns the names of the files written.
func (a *Assembler) Write(create FileCreator, sources []*Source, receptors []Receptor) ([]string, error) {
	size := a.GroupSize
	if size <= 0 {
		size = DefaultSourceGroupSize
	}
	if err := writeFile(create, ReceptorsFileName, []byte(strings.Join(ReceptorRecords(receptors), "\n"))); err != nil {
		return nil, err
	}
	names := []string{ReceptorsFileName}

	for start := 0; start < len(sources); start += size {
		end := start + size
		if end > len(sources) {
			end = len(sources)
		}
		title := fmt.Sprintf("%s_%d-%d", a.Title, start, end)
		b, err := a.render(title, sources[start:end])
		if err != nil {
			return nil, err
		}
		name := title + ".inp"
		if err := writeFile(create, name, b); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (a *Assembler) render(title string, group []*Source) ([]byte, error) {
	cf := ControlFile{
		Title:          title,
		Pollutant:      a.Pollutant,
		Population:     a.Population,
		SourceLocation: strings.Join(SourceLocationRecords(group), "\n"),
		SourceParam:    strings.Join(SourceParamRecords(group), "\n"),
		UrbanSource:    strings.Join(UrbanSourceRecords(group), "\n"),
		ReceptorCoords: "RE INCLUDED " + ReceptorsFileName,
		PostFile:       title + ".out",
	}
	if a.Meteorology != nil {
		cf.Meteorology = *a.Meteorology
	}
	if a.Template == nil {
		return []byte(strings.Join([]string{cf.SourceLocation, cf.SourceParam,
			cf.UrbanSource, cf.ReceptorCoords}, "\n") + "\n"), nil
	}
	var buf bytes.Buffer
	if err := a.Template.Execute(&buf, cf); err != nil {
		return nil, fmt.Errorf("aerprep: rendering control file %s: %v", title, err)
	}
	return buf.Bytes(), nil
}

func writeFile(create FileCreator, name string, b []byte) error {
	w, err := create(name)
	if err != nil {
		return fmt.Errorf("aerprep: creating %s: %v", name, err)
	}
	if _, err = w.Write(b); err != nil {
		w.Close()
		return fmt.Errorf("aerprep: writing %s: %v", name, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("aerprep: closing %s: %v", name, err)
	}
	return nil
}
