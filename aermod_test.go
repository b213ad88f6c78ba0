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
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"text/template"

	"github.com/ctessum/geom"
)

func TestRecords(t *testing.T) {
	s := &Source{
		UID:   "36782236804c",
		Start: geom.Point{X: 1523456.25, Y: 6012345.5},
		End:   geom.Point{X: 1523556, Y: 6012301.125},
		Flux:  2.5e-07,
		Width: 7.3152,
	}
	for _, test := range []struct {
		name string
		have []string
		want string
	}{
		{
			name: "location",
			have: SourceLocationRecords([]*Source{s}),
			want: "SO LOCATION 36782236804c LINE 1523456.25 6012345.5 1523556 6012301.125",
		},
		{
			name: "param",
			have: SourceParamRecords([]*Source{s}),
			want: "SO SRCPARAM 36782236804c 2.5e-07 1.4 7.3152",
		},
		{
			name: "urban",
			have: UrbanSourceRecords([]*Source{s}),
			want: "SO URBANSRC 36782236804c",
		},
		{
			name: "receptor",
			have: ReceptorRecords([]Receptor{{ID: "a", Point: geom.Point{X: 1523456.123456789, Y: -2}}}),
			want: "RE DISCCART 1523456.12346 -2.00000 1.5",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			if len(test.have) != 1 || test.have[0] != test.want {
				t.Errorf("have %q, want %q", test.have, test.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	for v, want := range map[float64]string{
		0:        "0",
		1.4:      "1.4",
		-2:       "-2",
		1e-4:     "0.0001",
		5e-5:     "5e-05",
		1234567:  "1234567",
		1.25e+20: "1.25e+20",
	} {
		if got := formatNumber(v); got != want {
			t.Errorf("%g: have %s, want %s", v, got, want)
		}
	}
}

// memFiles collects created files in memory.
type memFiles map[string]*bytes.Buffer

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (m memFiles) create(name string) (io.WriteCloser, error) {
	b := new(bytes.Buffer)
	m[name] = b
	return nopCloser{b}, nil
}

func assemblerSources(n int) []*Source {
	o := make([]*Source, n)
	for i := range o {
		o[i] = &Source{
			UID:   string(rune('a'+i)) + "00000000000",
			Start: geom.Point{X: float64(i), Y: 0},
			End:   geom.Point{X: float64(i), Y: 10},
			Flux:  1,
			Width: 2,
		}
	}
	return o
}

func TestAssembler_Write(t *testing.T) {
	files := make(memFiles)
	a := &Assembler{Title: "test", GroupSize: 2}
	receptors := []Receptor{{ID: "r", Point: geom.Point{X: 1, Y: 2}}}
	names, err := a.Write(files.create, assemblerSources(5), receptors)
	if err != nil {
		t.Fatal(err)
	}
	wantNames := []string{"receptors.txt", "test_0-2.inp", "test_2-4.inp", "test_4-5.inp"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("names: have %v, want %v", names, wantNames)
	}
	if len(files) != len(wantNames) {
		t.Errorf("have %d files, want %d", len(files), len(wantNames))
	}
	if got := files["receptors.txt"].String(); got != "RE DISCCART 1.00000 2.00000 1.5" {
		t.Errorf("receptors.txt: have %q", got)
	}
	want := `SO LOCATION e00000000000 LINE 4 0 4 10
SO SRCPARAM e00000000000 1 1.4 2
SO URBANSRC e00000000000
RE INCLUDED receptors.txt
`
	if got := files["test_4-5.inp"].String(); got != want {
		t.Errorf("test_4-5.inp: have\n%s\nwant\n%s", got, want)
	}
}

func TestAssembler_Write_exactGroups(t *testing.T) {
	files := make(memFiles)
	a := &Assembler{Title: "x", GroupSize: 2}
	names, err := a.Write(files.create, assemblerSources(4), nil)
	if err != nil {
		t.Fatal(err)
	}
	// No empty trailing group.
	wantNames := []string{"receptors.txt", "x_0-2.inp", "x_2-4.inp"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("names: have %v, want %v", names, wantNames)
	}
}

func TestAssembler_Write_template(t *testing.T) {
	tmpl := template.Must(template.New("aermod").Parse(`CO TITLEONE {{.Title}}
CO POLLUTID {{.Pollutant}}
{{.SourceLocation}}
{{.SourceParam}}
SO URBANOPT ALL {{.Population}}
{{.UrbanSource}}
{{.ReceptorCoords}}
OU POSTFILE ANNUAL ALL PLOT {{.PostFile}}
`))
	dir, err := ioutil.TempDir("", "aerprep_aermod")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	a := &Assembler{Title: "houston", Pollutant: "PM25", Population: 2100000, GroupSize: 10, Template: tmpl}
	if _, err := a.Write(DirCreator(dir), assemblerSources(1), nil); err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(filepath.Join(dir, "houston_0-1.inp"))
	if err != nil {
		t.Fatal(err)
	}
	want := `CO TITLEONE houston_0-1
CO POLLUTID PM25
SO LOCATION a00000000000 LINE 0 0 0 10
SO SRCPARAM a00000000000 1 1.4 2
SO URBANOPT ALL 2100000
SO URBANSRC a00000000000
RE INCLUDED receptors.txt
OU POSTFILE ANNUAL ALL PLOT houston_0-1.out
`
	if got := string(b); got != want {
		t.Errorf("have\n%s\nwant\n%s", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, ReceptorsFileName)); err != nil {
		t.Error(err)
	}
	if strings.Contains(string(b), "DISCCART") {
		t.Error("receptor records should only be in the receptors file")
	}
}
