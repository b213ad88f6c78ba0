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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tealeg/xlsx"
)

// Required columns of the emissions dataset.
const (
	emisLinkCol      = "linkID"
	emisPollutantCol = "pollutantID"
	emisQuantityCol  = "emquant"
)

// EmissionRecord is one row of the emissions dataset.
type EmissionRecord struct {
	Link        LinkKey
	PollutantID int
	Quantity    float64 // mass per day
}

// ReadEmissionsCSV reads emissions records from CSV data.
func ReadEmissionsCSV(r io.Reader) ([]EmissionRecord, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading emissions CSV")
	}
	return emissionRecords(rows)
}

// ReadEmissionsXLSX reads emissions records from the first sheet of
// a Microsoft Excel file.
func ReadEmissionsXLSX(path string) ([]EmissionRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening emissions file %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("aerprep: emissions file %s has no sheets", path)
	}
	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		r := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			r[i] = c.Value
		}
		rows = append(rows, r)
	}
	return emissionRecords(rows)
}

// emissionRecords converts a table with a header row into typed records.
func emissionRecords(rows [][]string) ([]EmissionRecord, error) {
	if len(rows) == 0 {
		return nil, &MissingColumnError{Dataset: "emissions", Column: emisLinkCol}
	}
	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[strings.TrimSpace(h)] = i
	}
	idx := make([]int, 3)
	for i, name := range []string{emisLinkCol, emisPollutantCol, emisQuantityCol} {
		j, ok := cols[name]
		if !ok {
			return nil, &MissingColumnError{Dataset: "emissions", Column: name}
		}
		idx[i] = j
	}

	recs := make([]EmissionRecord, 0, len(rows)-1)
	for line, row := range rows[1:] {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		for _, j := range idx {
			if j >= len(row) {
				return nil, fmt.Errorf("aerprep: emissions row %d is too short", line+2)
			}
		}
		var rec EmissionRecord
		var err error
		if rec.Link, err = parseLinkID(row[idx[0]]); err != nil {
			return nil, errors.Wrapf(err, "emissions row %d", line+2)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(row[idx[1]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "emissions row %d pollutantID", line+2)
		}
		rec.PollutantID = int(p)
		if rec.Quantity, err = strconv.ParseFloat(strings.TrimSpace(row[idx[2]]), 64); err != nil {
			return nil, errors.Wrapf(err, "emissions row %d emquant", line+2)
		}
		if math.IsNaN(rec.Quantity) || math.IsInf(rec.Quantity, 0) {
			return nil, errors.Wrapf(errInvalidNumber, "emissions row %d emquant `%s`", line+2, strings.TrimSpace(row[idx[2]]))
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// parseLinkID parses a link identifier in the format "from-to".
func parseLinkID(s string) (LinkKey, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return LinkKey{}, fmt.Errorf("aerprep: invalid link ID `%s`", s)
	}
	from, err := parseNodeID(parts[0])
	if err != nil {
		return LinkKey{}, err
	}
	to, err := parseNodeID(parts[1])
	if err != nil {
		return LinkKey{}, err
	}
	return LinkKey{From: from, To: to}, nil
}

// MergeSummary describes the outcome of an emissions merge.
type MergeSummary struct {
	// Links is the number of links that received a flux.
	Links int

	// UnknownLinks is the number of emitting link IDs that are not
	// in the network.
	UnknownLinks int

	// NoEmissions is the number of network links without emissions.
	NoEmissions int

	// Degenerate is the number of emitting links with zero or non-finite
	// length or width, which cannot carry a flux.
	Degenerate int
}

// MergeEmissionFlux filters recs to the given pollutant, sums the
// emitted quantity for each link and sets each link's flux to
// total / (length * width * SecondsPerDay). Links without matching records
// keep a nil flux.
func (n *Network) MergeEmissionFlux(recs []EmissionRecord, pollutantID int) MergeSummary {
	totals := make(map[LinkKey]float64)
	var order []LinkKey
	for _, r := range recs {
		if r.PollutantID != pollutantID {
			continue
		}
		if _, ok := totals[r.Link]; !ok {
			order = append(order, r.Link)
		}
		totals[r.Link] += r.Quantity
	}

	var s MergeSummary
	for _, k := range order {
		l, ok := n.Link(k)
		if !ok {
			s.UnknownLinks++
			continue
		}
		area := l.Length() * l.Width
		if !(area > 0) || math.IsInf(area, 0) {
			s.Degenerate++
			continue
		}
		flux := totals[k] / (area * SecondsPerDay)
		l.Flux = &flux
		s.Links++
	}
	for _, l := range n.links {
		if l.Flux == nil {
			s.NoEmissions++
		}
	}
	return s
}
