// Package metrics exposes admission outcome counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionsTotal counts persisted attendance records by direction.
	AdmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolock_admissions_total",
		Help: "Attendance records written, by direction.",
	}, []string{"direction"})

	// DenialsTotal counts geofence gate denials by reason.
	DenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolock_geofence_denials_total",
		Help: "Geofence gate denials, by reason.",
	}, []string{"reason"})

	// DuplicatesTotal counts admission conflicts by colliding key.
	DuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolock_duplicate_submissions_total",
		Help: "Submissions rejected as duplicates, by colliding key.",
	}, []string{"kind"})
)
