/*
 * VC5 load balancer. Copyright (C) 2021-present David Coles
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

// Package metrics exposes the routing core's state as Prometheus
// metrics. The core itself is single-threaded and holds no lock; a
// scrape happens on a different goroutine, so Collector takes its own
// snapshot copy under a mutex each time the core calls Update.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type neighbourStat struct {
	liveLinks int
	dropRate  int
}

// Collector is a prometheus.Collector over the routing core's state.
type Collector struct {
	mu sync.Mutex

	routeVersion int64
	neighbours   map[string]neighbourStat

	routeVersionDesc *prometheus.Desc
	neighbourDesc    *prometheus.Desc
	liveLinksDesc    *prometheus.Desc
	dropRateDesc     *prometheus.Desc
}

// New returns a Collector with no snapshot yet (all gauges read zero
// until the first Update).
func New(namespace string) *Collector {
	return &Collector{
		neighbours: make(map[string]neighbourStat),
		routeVersionDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "route_version"),
			"Current global route version counter.",
			nil, nil,
		),
		neighbourDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "neighbours"),
			"Number of directly-heard neighbours.",
			nil, nil,
		),
		liveLinksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "neighbour_live_links"),
			"Number of live neighbour-links for a given neighbour.",
			[]string{"neighbour"}, nil,
		),
		dropRateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "neighbour_drop_rate"),
			"Estimated drop rate (0-32) of the neighbour's best link.",
			[]string{"neighbour"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.routeVersionDesc
	descs <- c.neighbourDesc
	descs <- c.liveLinksDesc
	descs <- c.dropRateDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics <- prometheus.MustNewConstMetric(c.routeVersionDesc, prometheus.CounterValue, float64(c.routeVersion))
	metrics <- prometheus.MustNewConstMetric(c.neighbourDesc, prometheus.GaugeValue, float64(len(c.neighbours)))

	for sid, stat := range c.neighbours {
		metrics <- prometheus.MustNewConstMetric(c.liveLinksDesc, prometheus.GaugeValue, float64(stat.liveLinks), sid)
		metrics <- prometheus.MustNewConstMetric(c.dropRateDesc, prometheus.GaugeValue, float64(stat.dropRate), sid)
	}
}

// NeighbourSnapshot is one neighbour's state as of the last Update, the
// shape Update expects from the core (avoids an import of package link
// here, keeping metrics decoupled from the routing core's types).
type NeighbourSnapshot struct {
	SID       string
	LiveLinks int
	DropRate  int
}

// Update replaces the collector's snapshot; called by the core after each
// send tick and after each inbound link-state payload that changed
// routing, once the link table has settled.
func (c *Collector) Update(routeVersion int64, neighbours []NeighbourSnapshot) {
	next := make(map[string]neighbourStat, len(neighbours))
	for _, n := range neighbours {
		next[n.SID] = neighbourStat{liveLinks: n.LiveLinks, dropRate: n.DropRate}
	}

	c.mu.Lock()
	c.routeVersion = routeVersion
	c.neighbours = next
	c.mu.Unlock()
}
