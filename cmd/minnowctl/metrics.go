package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSegmentsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minnow_segments_sent_total",
		Help: "Count of TCP segments transmitted by the sender, including retransmissions",
	})

	metricRetransmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minnow_retransmissions_total",
		Help: "Count of segment retransmissions triggered by the RTO timer while the peer's window is nonzero",
	})

	metricArpCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minnow_arp_cache_size",
		Help: "Number of unexpired ARP cache entries on the local interface",
	})

	metricPendingDatagrams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minnow_pending_datagrams",
		Help: "Number of datagrams awaiting ARP resolution on the local interface",
	})
)
