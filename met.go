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
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Names of the files in an AERMET output directory.
const (
	SurfaceFileName         = "AERMETSURFACE.SFC"
	UpperAirFileName        = "AERMETUPPER.PFL"
	SurfaceStationFileName  = "bestSurfaceStation.txt"
	UpperAirStationFileName = "bestUpperStation.txt"
	SurfaceElevationName    = "bestSurfElev.txt"
)

// Meteorology describes the AERMET output that the control files refer to
// in their ME pathway.
type Meteorology struct {
	// SurfaceFile and UpperAirFile are the paths to the AERMET
	// surface and profile files.
	SurfaceFile, UpperAirFile string

	// SurfaceStation and UpperAirStation are the station identifiers.
	SurfaceStation, UpperAirStation string

	// BaseElevation is the elevation [m] of the surface station.
	BaseElevation float64

	// Year, Month and Day give the modeled date.
	Year, Month, Day int
}

// ReadMeteorology reads the station identifiers and elevation written by
// AERMET preprocessing to dir, and the year and month of its profile
// file. The day is not part of the AERMET output and must be set by the
// caller.
func ReadMeteorology(dir string) (*Meteorology, error) {
	m := &Meteorology{
		SurfaceFile:  filepath.Join(dir, SurfaceFileName),
		UpperAirFile: filepath.Join(dir, UpperAirFileName),
	}
	var err error
	if m.SurfaceStation, err = readTrimmed(filepath.Join(dir, SurfaceStationFileName)); err != nil {
		return nil, err
	}
	if m.UpperAirStation, err = readTrimmed(filepath.Join(dir, UpperAirStationFileName)); err != nil {
		return nil, err
	}
	elev, err := readTrimmed(filepath.Join(dir, SurfaceElevationName))
	if err != nil {
		return nil, err
	}
	if m.BaseElevation, err = strconv.ParseFloat(elev, 64); err != nil || !finite(m.BaseElevation) {
		return nil, fmt.Errorf("aerprep: invalid surface elevation `%s`", elev)
	}
	if m.Year, m.Month, err = profileDate(m.UpperAirFile); err != nil {
		return nil, err
	}
	return m, nil
}

func readTrimmed(path string) (string, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "reading AERMET output")
	}
	return strings.TrimSpace(string(b)), nil
}

// profileDate returns the year and month of the records in the AERMET
// profile file at path. Two-digit years are taken to be after 2000.
// All records must be from the same month.
func profileDate(path string) (year, month int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrap(err, "reading AERMET profile")
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	line := 0
	for s.Scan() {
		line++
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return 0, 0, fmt.Errorf("aerprep: AERMET profile line %d is too short", line)
		}
		y, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, 0, errors.Wrapf(err, "AERMET profile line %d year", line)
		}
		mo, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, errors.Wrapf(err, "AERMET profile line %d month", line)
		}
		if y < 100 {
			y += 2000
		}
		if year == 0 {
			year, month = y, mo
		} else if y != year || mo != month {
			return 0, 0, fmt.Errorf("aerprep: AERMET profile covers more than one month (%d-%d and %d-%d)", year, month, y, mo)
		}
	}
	if err := s.Err(); err != nil {
		return 0, 0, errors.Wrap(err, "reading AERMET profile")
	}
	if year == 0 {
		return 0, 0, fmt.Errorf("aerprep: AERMET profile %s is empty", path)
	}
	return year, month, nil
}
