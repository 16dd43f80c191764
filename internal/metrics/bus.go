// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_bus_published_total",
		Help: "Change events published by kind",
	}, []string{"kind"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_bus_dropped_total",
		Help: "In-memory bus events dropped by partition and reason",
	}, []string{"partition", "reason"})

	BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sle_bus_subscribers",
		Help: "Active change stream subscribers",
	})
)

// IncBusPublished records a published change event.
func IncBusPublished(kind string) {
	BusPublishedTotal.WithLabelValues(kind).Inc()
}

// IncBusDrop records a dropped event for the given partition.
func IncBusDrop(partition string) {
	IncBusDropReason(partition, "full")
}

// IncBusDropReason records a dropped event with a concrete reason.
func IncBusDropReason(partition, reason string) {
	if partition == "" {
		partition = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(partition, reason).Inc()
}
