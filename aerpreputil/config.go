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

package aerpreputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/ctessum/geom/proj"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/aerprep"
	"github.com/spatialmodel/aerprep/cloud"
	"github.com/spf13/cast"
)

// Run creates or loads the sources and receptors described by the
// configuration in cfg.
func Run(ctx context.Context, cfg *viper.Viper) (*aerprep.Result, error) {
	s, err := NewScenario(cfg)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}

// NewScenario returns the scenario described by the configuration in cfg.
func NewScenario(cfg *viper.Viper) (*aerprep.Scenario, error) {
	layers, err := receptorLayers(cfg.Get("ReceptorLayers"))
	if err != nil {
		return nil, err
	}
	timeout, err := cast.ToDurationE(cfg.Get("WorkerTimeout"))
	if err != nil {
		return nil, fmt.Errorf("aerprep: invalid WorkerTimeout: %v", err)
	}
	workers := cfg.GetInt("Workers")
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(-1)
	}
	log := logrus.StandardLogger()
	return &aerprep.Scenario{
		LoadNetwork:     func(ctx context.Context) (*aerprep.Network, error) { return loadNetwork(ctx, cfg, log) },
		ReceptorSpacing: cfg.GetFloat64("ReceptorSpacing"),
		ReceptorLayers:  layers,
		ReceptorMode:    cfg.GetString("ReceptorMode"),
		GridReceptors:   cfg.GetBool("GridReceptors"),
		Workers:         workers,
		WorkerTimeout:   timeout,
		Store:           cloud.Store{},
		SourcesKey:      os.ExpandEnv(cfg.GetString("SourcesFile")),
		ReceptorsKey:    os.ExpandEnv(cfg.GetString("ReceptorsFile")),
		Log:             log,
	}, nil
}

// receptorLayers converts the ReceptorLayers option to a list of
// distances, accounting for the fact that it might be a JSON array
// or a comma-separated list if it was set from a command line argument
// or an environment variable.
func receptorLayers(v interface{}) ([]float64, error) {
	var o []float64
	switch t := v.(type) {
	case []float64:
		o = t
	case []interface{}:
		o = make([]float64, len(t))
		for i, val := range t {
			f, err := cast.ToFloat64E(val)
			if err != nil {
				return nil, fmt.Errorf("aerprep: invalid ReceptorLayers: %v", err)
			}
			o[i] = f
		}
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasPrefix(s, "[") {
			s = "[" + s + "]"
		}
		if err := json.Unmarshal([]byte(s), &o); err != nil {
			return nil, fmt.Errorf("aerprep: invalid ReceptorLayers: %v", err)
		}
	default:
		return nil, fmt.Errorf("aerprep: invalid ReceptorLayers type %T", v)
	}
	for _, f := range o {
		if f < 0 {
			return nil, fmt.Errorf("aerprep: ReceptorLayers must not be negative but include %g", f)
		}
	}
	return o, nil
}

// loadNetwork reads the link geometries and emissions named in cfg and
// returns the network with emission fluxes.
func loadNetwork(ctx context.Context, cfg *viper.Viper, log logrus.FieldLogger) (*aerprep.Network, error) {
	sr, err := proj.Parse(os.ExpandEnv(cfg.GetString("SR")))
	if err != nil {
		return nil, fmt.Errorf("aerprep: parsing SR: %v", err)
	}
	cols := aerprep.LinkColumns{
		FromNode: cfg.GetString("Columns.FromNode"),
		ToNode:   cfg.GetString("Columns.ToNode"),
		Lanes:    cfg.GetString("Columns.Lanes"),
	}
	laneWidth := cfg.GetFloat64("LaneWidth")

	linkPath := os.ExpandEnv(cfg.GetString("LinkGeometries"))
	if linkPath == "" {
		return nil, fmt.Errorf("aerprep: LinkGeometries must be specified")
	}
	linkPath, err = maybeDownload(ctx, linkPath, log)
	if err != nil {
		return nil, err
	}
	var net *aerprep.Network
	if strings.ToLower(filepath.Ext(linkPath)) == ".shp" {
		net, err = aerprep.ReadLinkShapefile(linkPath, sr, laneWidth, cols)
	} else {
		var inSR *proj.SR
		if inSR, err = proj.Parse(os.ExpandEnv(cfg.GetString("InputSR"))); err != nil {
			return nil, fmt.Errorf("aerprep: parsing InputSR: %v", err)
		}
		var f *os.File
		if f, err = os.Open(linkPath); err != nil {
			return nil, fmt.Errorf("aerprep: opening link geometries: %v", err)
		}
		net, err = aerprep.ReadLinkGeoJSON(f, inSR, sr, laneWidth, cols)
		f.Close()
	}
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"file":  linkPath,
		"links": len(net.Links()),
	}).Info("read link geometries")

	emisPath := os.ExpandEnv(cfg.GetString("Emissions"))
	if emisPath == "" {
		return nil, fmt.Errorf("aerprep: Emissions must be specified")
	}
	if emisPath, err = maybeDownload(ctx, emisPath, log); err != nil {
		return nil, err
	}
	var recs []aerprep.EmissionRecord
	if strings.ToLower(filepath.Ext(emisPath)) == ".xlsx" {
		recs, err = aerprep.ReadEmissionsXLSX(emisPath)
	} else {
		var f *os.File
		if f, err = os.Open(emisPath); err != nil {
			return nil, fmt.Errorf("aerprep: opening emissions: %v", err)
		}
		recs, err = aerprep.ReadEmissionsCSV(f)
		f.Close()
	}
	if err != nil {
		return nil, err
	}
	sum := net.MergeEmissionFlux(recs, cfg.GetInt("PollutantID"))
	log.WithFields(logrus.Fields{
		"records":      len(recs),
		"links":        sum.Links,
		"unknownLinks": sum.UnknownLinks,
		"noEmissions":  sum.NoEmissions,
		"degenerate":   sum.Degenerate,
	}).Info("merged emissions")
	return net, nil
}

// Assembler returns the AERMOD control file assembler described by the
// configuration in cfg.
func Assembler(ctx context.Context, cfg *viper.Viper) (*aerprep.Assembler, error) {
	a := &aerprep.Assembler{
		Title:      cfg.GetString("AERMOD.Title"),
		Pollutant:  cfg.GetString("AERMOD.Pollutant"),
		Population: cfg.GetInt("AERMOD.Population"),
		GroupSize:  cfg.GetInt("AERMOD.SourceGroupSize"),
	}
	if a.Title == "" {
		return nil, fmt.Errorf("aerprep: AERMOD.Title must be specified")
	}
	if path := os.ExpandEnv(cfg.GetString("AERMOD.Template")); path != "" {
		b, err := cloud.ReadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("aerprep: reading AERMOD template: %v", err)
		}
		if a.Template, err = template.New(filepath.Base(path)).Parse(string(bytes.TrimPrefix(b, []byte("\xef\xbb\xbf")))); err != nil {
			return nil, fmt.Errorf("aerprep: parsing AERMOD template: %v", err)
		}
	}
	if dir := os.ExpandEnv(cfg.GetString("AERMOD.AERMETDir")); dir != "" {
		m, err := aerprep.ReadMeteorology(dir)
		if err != nil {
			return nil, err
		}
		m.Day = cfg.GetInt("AERMOD.Day")
		if m.Day < 1 || m.Day > 31 {
			return nil, fmt.Errorf("aerprep: AERMOD.Day must be between 1 and 31 but is %d", m.Day)
		}
		a.Meteorology = m
	}
	return a, nil
}
