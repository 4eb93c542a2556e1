// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package support

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// generationDuration tracks support tree generation time.
	generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "support_generation_duration_seconds",
			Help:      "Time spent generating a support tree",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
	)

	// elementsTotal counts generated support elements.
	//
	// Labels:
	//   - kind: head, pillar, bridge, cross_bridge or base
	elementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "support_elements_total",
			Help:      "Total number of generated support elements by kind",
		},
		[]string{"kind"},
	)
)
