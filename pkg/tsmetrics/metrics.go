// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package tsmetrics 把extractor的事件以及统计信息导出为prometheus指标
package tsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/extractor"
)

const namespace = "tsextractor"

// Metrics 实现了 extractor.Observer
type Metrics struct {
	TracksAdded *prometheus.CounterVec
	Packets     prometheus.Counter
	Resyncs     prometheus.Counter
	SyncPoints  *prometheus.CounterVec

	// LastSyncPointSeconds 每种媒体类型最近一个同步点的时间戳
	LastSyncPointSeconds *prometheus.GaugeVec

	Seeks        *prometheus.CounterVec
	SeekDuration prometheus.Histogram
}

var _ extractor.Observer = &Metrics{}

// New 创建并注册到reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TracksAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracks_added_total",
				Help:      "Total number of tracks discovered",
			},
			[]string{"kind", "mime"},
		),
		Packets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Total number of transport packets read",
		}),
		Resyncs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resyncs_total",
			Help:      "Total number of times packet alignment was lost",
		}),
		SyncPoints: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_points_total",
				Help:      "Total number of sync points indexed",
			},
			[]string{"kind"},
		),
		LastSyncPointSeconds: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_sync_point_seconds",
				Help:      "Media time of the latest indexed sync point",
			},
			[]string{"kind"},
		),
		Seeks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seeks_total",
				Help:      "Total number of seeks",
			},
			[]string{"mode", "result"},
		),
		SeekDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "seek_duration_seconds",
			Help:      "Wall clock time spent in seek",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) OnTrackAdded(kind base.MediaKind, format *base.Format) {
	m.TracksAdded.WithLabelValues(kind.ReadableString(), format.Mime).Inc()
}

func (m *Metrics) OnPacket(offset int64) {
	m.Packets.Inc()
}

func (m *Metrics) OnResync(offset int64) {
	m.Resyncs.Inc()
}

func (m *Metrics) OnSyncPoint(kind base.MediaKind, timeUs int64, offset int64) {
	m.SyncPoints.WithLabelValues(kind.ReadableString()).Inc()
	m.LastSyncPointSeconds.WithLabelValues(kind.ReadableString()).Set(float64(timeUs) / 1e6)
}

func (m *Metrics) OnSeek(targetUs int64, mode base.SeekMode, costMs int64, err error) {
	m.Seeks.WithLabelValues(mode.ReadableString(), seekResult(err)).Inc()
	m.SeekDuration.Observe(float64(costMs) / 1e3)
}

func seekResult(err error) string {
	switch err {
	case nil:
		return "ok"
	case base.ErrEndOfStream:
		return "eos"
	}
	return "error"
}
