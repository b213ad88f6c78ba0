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
	"runtime"
	"time"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
)

// DefaultWorkerTimeout is the default time that the Pruner waits for
// its workers.
const DefaultWorkerTimeout = 10 * time.Second

// BufferIndex finds the source buffer nearest to a point.
// *SourceIndex implements it.
type BufferIndex interface {
	Nearest(p geom.Point) (s *Source, d float64, ok bool)
}

// Pruner removes receptors that lie within source buffers.
type Pruner struct {
	Index BufferIndex

	// Workers is the number of partitions that are checked
	// concurrently. If zero, runtime.GOMAXPROCS(0) is used.
	Workers int

	// Timeout is how long to wait for all partitions to be checked.
	// If zero, DefaultWorkerTimeout is used.
	Timeout time.Duration

	// Log receives warnings about abandoned partitions. If nil,
	// the standard logger is used.
	Log logrus.FieldLogger
}

// AbandonedGroup is a partition of receptors whose check did not finish
// in time. Its receptors are kept without being checked.
type AbandonedGroup struct {
	Index     int // partition index
	Receptors int // number of receptors in the partition
}

// PruneReport summarizes a Prune run.
type PruneReport struct {
	// Groups is the number of partitions.
	Groups int

	// Dropped is the number of receptors that were removed.
	Dropped int

	// Abandoned lists the partitions that did not report in time,
	// in index order.
	Abandoned []AbandonedGroup
}

// Complete reports whether every partition was checked.
func (r *PruneReport) Complete() bool { return len(r.Abandoned) == 0 }

type pruneResult struct {
	group   int
	dropped []string
}

// Prune returns the receptors that are not strictly inside the buffer of
// the source nearest to them, in their original order. The receptors are
// split into contiguous partitions that are checked concurrently.
// Partitions that are not finished when p.Timeout expires are abandoned
// and their receptors are kept unchecked; this is recorded in the
// report. An error is returned only if ctx is cancelled.
func (p *Pruner) Prune(ctx context.Context, receptors []Receptor) ([]Receptor, *PruneReport, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultWorkerTimeout
	}
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	report := new(PruneReport)
	if len(receptors) == 0 {
		return []Receptor{}, report, nil
	}
	size := (len(receptors) + workers - 1) / workers
	report.Groups = (len(receptors) + size - 1) / size
	bounds := func(g int) (int, int) {
		start := g * size
		end := start + size
		if end > len(receptors) {
			end = len(receptors)
		}
		return start, end
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan pruneResult, report.Groups)
	for g := 0; g < report.Groups; g++ {
		start, end := bounds(g)
		go func(g int, rs []Receptor) {
			var dropped []string
			for _, r := range rs {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				if s, _, ok := p.Index.Nearest(r.Point); ok && r.Point.Within(s.Buffer) == geom.Inside {
					dropped = append(dropped, r.ID)
				}
			}
			results <- pruneResult{group: g, dropped: dropped}
		}(g, receptors[start:end])
	}

	reported := make([]bool, report.Groups)
	drop := make(map[string]bool)
	received := 0
wait:
	for received < report.Groups {
		select {
		case r := <-results:
			reported[r.group] = true
			for _, id := range r.dropped {
				drop[id] = true
			}
			received++
		case <-runCtx.Done():
			break wait
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	for g, ok := range reported {
		if !ok {
			start, end := bounds(g)
			report.Abandoned = append(report.Abandoned, AbandonedGroup{Index: g, Receptors: end - start})
		}
	}
	if !report.Complete() {
		n := 0
		for _, a := range report.Abandoned {
			n += a.Receptors
		}
		log.WithFields(logrus.Fields{
			"abandoned": len(report.Abandoned),
			"groups":    report.Groups,
			"unchecked": n,
			"timeout":   timeout,
		}).Warn("receptor pruning workers did not finish in time")
	}

	o := make([]Receptor, 0, len(receptors)-len(drop))
	for _, r := range receptors {
		if drop[r.ID] {
			report.Dropped++
			continue
		}
		o = append(o, r)
	}
	return o, report, nil
}
