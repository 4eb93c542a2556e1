// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sla

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// applyTotal counts Apply calls by resulting status.
	//
	// Labels:
	//   - status: unchanged, changed, invalidated or error
	applyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "apply_total",
			Help:      "Total Apply calls by status",
		},
		[]string{"status"},
	)

	// processDuration tracks the duration of Process rounds.
	//
	// Labels:
	//   - outcome: done, canceled or failed
	processDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "process_duration_seconds",
			Help:      "Duration of Process rounds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"outcome"},
	)

	// printObjects tracks the number of objects held by the print.
	printObjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "print_objects",
			Help:      "Number of objects held by the print",
		},
	)

	// printerLayers tracks the layer count of the last printer input.
	printerLayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "printer_layers",
			Help:      "Layer count of the last assembled printer input",
		},
	)
)
