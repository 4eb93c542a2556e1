// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package background

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// roundsTotal counts processor rounds by outcome.
	//
	// Labels:
	//   - outcome: finished, canceled, failed or rejected
	roundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "background_rounds_total",
			Help:      "Total background rounds by outcome",
		},
		[]string{"outcome"},
	)

	// snapshotsReplacedTotal counts pending snapshots replaced by newer ones
	// before the loop picked them up.
	snapshotsReplacedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "background_snapshots_replaced_total",
			Help:      "Pending snapshots replaced before processing",
		},
	)

	// statusDroppedTotal counts status reports suppressed by throttling.
	statusDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "slicer",
			Name:      "background_status_dropped_total",
			Help:      "Status reports suppressed by throttling",
		},
	)
)
