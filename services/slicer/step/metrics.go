// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package step

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stepRunsTotal counts step executions by outcome.
	//
	// Labels:
	//   - table: Step table name
	//   - step: Step name
	//   - outcome: done, failed, canceled or skipped
	stepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "step_runs_total",
			Help:      "Total number of pipeline step executions by outcome",
		},
		[]string{"table", "step", "outcome"},
	)

	// stepDuration tracks step computation time.
	//
	// Labels:
	//   - table: Step table name
	//   - step: Step name
	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "step_duration_seconds",
			Help:      "Time spent computing a pipeline step",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"table", "step"},
	)

	// invalidationsTotal counts steps cleared by invalidation.
	//
	// Labels:
	//   - table: Step table name
	//   - step: Step name
	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "step_invalidations_total",
			Help:      "Total number of done or running steps cleared by invalidation",
		},
		[]string{"table", "step"},
	)
)
