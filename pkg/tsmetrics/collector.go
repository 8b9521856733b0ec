// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/q191201771/tsextractor/pkg/extractor"
)

// StatCollector 每次被采集时读取 extractor.Extractor 的 Stat
type StatCollector struct {
	e *extractor.Extractor

	offset       *prometheus.Desc
	readBytes    *prometheus.Desc
	bitrate      *prometheus.Desc
	duration     *prometheus.Desc
	ccErrors     *prometheus.Desc
	droppedPes   *prometheus.Desc
	accessUnits  *prometheus.Desc
	syncIndexLen *prometheus.Desc
}

var _ prometheus.Collector = &StatCollector{}

func NewStatCollector(e *extractor.Extractor) *StatCollector {
	constLabels := prometheus.Labels{"extractor": e.UniqueKey()}
	desc := func(name, help string, variableLabels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variableLabels, constLabels)
	}
	return &StatCollector{
		e:            e,
		offset:       desc("offset_bytes", "Current read cursor in the source"),
		readBytes:    desc("read_bytes_total", "Total bytes read from the source"),
		bitrate:      desc("read_bitrate_kbits", "Read bitrate over the last 5 seconds"),
		duration:     desc("duration_seconds", "Estimated duration, 0 if unknown"),
		ccErrors:     desc("continuity_errors_total", "Total number of continuity counter gaps"),
		droppedPes:   desc("dropped_pes_total", "Total number of PES packets dropped by the parser"),
		accessUnits:  desc("access_units_total", "Total number of access units produced by the parser"),
		syncIndexLen: desc("sync_index_entries", "Number of entries in the sync index", "track"),
	}
}

func (c *StatCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.offset
	ch <- c.readBytes
	ch <- c.bitrate
	ch <- c.duration
	ch <- c.ccErrors
	ch <- c.droppedPes
	ch <- c.accessUnits
	ch <- c.syncIndexLen
}

func (c *StatCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.e.Stat()
	ch <- prometheus.MustNewConstMetric(c.offset, prometheus.GaugeValue, float64(s.Offset))
	ch <- prometheus.MustNewConstMetric(c.readBytes, prometheus.CounterValue, float64(s.ReadBytes))
	ch <- prometheus.MustNewConstMetric(c.bitrate, prometheus.GaugeValue, float64(s.BitrateKbits))
	ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, float64(s.DurationUs)/1e6)
	ch <- prometheus.MustNewConstMetric(c.ccErrors, prometheus.CounterValue, float64(s.Parser.CcErrorCount))
	ch <- prometheus.MustNewConstMetric(c.droppedPes, prometheus.CounterValue, float64(s.Parser.DropPesCount))
	ch <- prometheus.MustNewConstMetric(c.accessUnits, prometheus.CounterValue, float64(s.Parser.AccessUnitCount))
	for track, n := range s.SyncIndexLen {
		ch <- prometheus.MustNewConstMetric(c.syncIndexLen, prometheus.GaugeValue, float64(n), track)
	}
}
