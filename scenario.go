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
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Receptor layout modes.
const (
	// LayeredMode gives every source the same receptor layers.
	LayeredMode = "layered"

	// DensityMode scales the number of receptor layers with the
	// source flux.
	DensityMode = "density"
)

// Store holds persisted interchange files.
type Store interface {
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, key string) (io.WriteCloser, error)
}

// Scenario prepares the sources and receptors for one study. Sources and
// receptors that have already been saved to Store are loaded rather than
// recomputed.
type Scenario struct {
	// LoadNetwork returns the road network with emission fluxes.
	// It is only called when sources need to be created.
	LoadNetwork func(ctx context.Context) (*Network, error)

	// SegmentPolicy selects the link segments that become sources.
	// If nil, DropShortSegments is used.
	SegmentPolicy SegmentPolicy

	ReceptorSpacing float64
	ReceptorLayers  []float64

	// ReceptorMode is LayeredMode or DensityMode.
	ReceptorMode string

	// GridReceptors specifies whether to add background receptors
	// covering the study area.
	GridReceptors bool

	Workers       int
	WorkerTimeout time.Duration

	Store        Store
	SourcesKey   string
	ReceptorsKey string

	Log logrus.FieldLogger
}

// Result is the outcome of a Scenario run.
type Result struct {
	Sources   *SourceSet
	StudyArea *StudyArea
	Receptors []Receptor

	// Prune is nil if the receptors were loaded from the Store.
	Prune *PruneReport
}

func (s *Scenario) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// Run loads or creates the sources, then loads or creates the receptors.
func (s *Scenario) Run(ctx context.Context) (*Result, error) {
	if s.ReceptorSpacing <= 0 {
		return nil, fmt.Errorf("aerprep: receptor spacing must be positive but is %g", s.ReceptorSpacing)
	}
	switch s.ReceptorMode {
	case LayeredMode, DensityMode:
	default:
		return nil, fmt.Errorf("aerprep: invalid receptor mode `%s`", s.ReceptorMode)
	}
	r := new(Result)
	var err error
	if r.Sources, err = s.sources(ctx); err != nil {
		return nil, err
	}
	if s.GridReceptors {
		if r.StudyArea, err = NewStudyArea(r.Sources.Sources, s.ReceptorSpacing); err != nil {
			return nil, err
		}
	}
	if r.Receptors, r.Prune, err = s.receptors(ctx, r.Sources, r.StudyArea); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Scenario) sources(ctx context.Context) (*SourceSet, error) {
	log := s.log()
	set, err := s.loadSources(ctx)
	if err == nil {
		log.WithField("sources", len(set.Sources)).Info("loaded saved sources")
		return set, nil
	}
	log.WithError(err).Info("no saved sources; creating them")

	if s.LoadNetwork == nil {
		return nil, fmt.Errorf("aerprep: no road network is available")
	}
	net, err := s.LoadNetwork(ctx)
	if err != nil {
		return nil, err
	}
	set = net.Sources(s.SegmentPolicy)
	log.WithFields(logrus.Fields{
		"links":   len(net.Links()),
		"sources": len(set.Sources),
	}).Info("created sources")

	if err := s.save(ctx, s.SourcesKey, func(w io.Writer) error { return SaveSources(w, set.Sources) }); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *Scenario) loadSources(ctx context.Context) (*SourceSet, error) {
	if s.Store == nil || s.SourcesKey == "" {
		return nil, fmt.Errorf("aerprep: no sources file")
	}
	r, err := s.Store.NewReader(ctx, s.SourcesKey)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return LoadSources(r)
}

func (s *Scenario) receptors(ctx context.Context, set *SourceSet, area *StudyArea) ([]Receptor, *PruneReport, error) {
	log := s.log()
	rs, err := s.loadReceptors(ctx)
	if err == nil {
		log.WithField("receptors", len(rs)).Info("loaded saved receptors")
		return rs, nil, nil
	}
	log.WithError(err).Info("no saved receptors; creating them")

	if s.ReceptorMode == DensityMode {
		rs = DensityScaledReceptors(set.Sources, s.ReceptorSpacing, s.ReceptorLayers)
	} else {
		rs = LayeredReceptors(set.Sources, s.ReceptorSpacing, s.ReceptorLayers)
	}
	nSource := len(rs)
	if area != nil {
		rs = append(rs, GridReceptors(area, s.ReceptorSpacing)...)
	}
	log.WithFields(logrus.Fields{
		"source receptors": nSource,
		"grid receptors":   len(rs) - nSource,
	}).Info("created receptors")

	p := &Pruner{
		Index:   set.Index,
		Workers: s.Workers,
		Timeout: s.WorkerTimeout,
		Log:     log,
	}
	rs, report, err := p.Prune(ctx, rs)
	if err != nil {
		return nil, nil, err
	}
	n := len(rs)
	rs = DedupeReceptors(rs)
	log.WithFields(logrus.Fields{
		"dropped":    report.Dropped,
		"duplicates": n - len(rs),
		"remaining":  len(rs),
	}).Info("pruned receptors")

	if err := s.save(ctx, s.ReceptorsKey, func(w io.Writer) error { return SaveReceptors(w, rs) }); err != nil {
		return nil, nil, err
	}
	return rs, report, nil
}

func (s *Scenario) loadReceptors(ctx context.Context) ([]Receptor, error) {
	if s.Store == nil || s.ReceptorsKey == "" {
		return nil, fmt.Errorf("aerprep: no receptors file")
	}
	r, err := s.Store.NewReader(ctx, s.ReceptorsKey)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return LoadReceptors(r)
}

// save writes a file to the Store, if there is one.
func (s *Scenario) save(ctx context.Context, key string, write func(io.Writer) error) error {
	if s.Store == nil || key == "" {
		return nil
	}
	w, err := s.Store.NewWriter(ctx, key)
	if err != nil {
		return fmt.Errorf("aerprep: saving %s: %v", key, err)
	}
	if err := write(w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("aerprep: saving %s: %v", key, err)
	}
	s.log().WithField("file", key).Info("saved")
	return nil
}
