// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsmetrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/datasource"
	"github.com/q191201771/tsextractor/pkg/extractor"
	"github.com/q191201771/tsextractor/pkg/tsgen"
)

func TestMetrics(t *testing.T) {
	var buf bytes.Buffer
	ret, err := tsgen.Generate(&buf, func(option *tsgen.Option) {
		option.DurationMs = 2000
	})
	assert.Equal(t, nil, err)

	reg := prometheus.NewRegistry()
	m := New(reg)
	e, err := extractor.Open(datasource.NewBufferSource(buf.Bytes()), func(option *extractor.Option) {
		option.Observer = m
	})
	assert.Equal(t, nil, err)

	var video *extractor.Track
	for _, track := range e.Tracks() {
		if track.Kind() == base.MediaKindVideo {
			video = track
		}
	}
	for {
		if _, err = video.Read(nil); err != nil {
			break
		}
	}
	assert.Equal(t, base.ErrEndOfStream, err)

	assert.Equal(t, float64(buf.Len()/base.TsPacketSize), testutil.ToFloat64(m.Packets))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Resyncs))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TracksAdded.WithLabelValues("video", base.MimeVideoAvc)))
	assert.Equal(t, float64(ret.KeyFrameCount), testutil.ToFloat64(m.SyncPoints.WithLabelValues("video")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LastSyncPointSeconds.WithLabelValues("video")))

	assert.Equal(t, nil, e.SeekTo(500000, base.SeekPreviousSync))
	assert.Equal(t, base.ErrEndOfStream, e.SeekTo(5000000, base.SeekNextSync))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Seeks.WithLabelValues("previous_sync", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Seeks.WithLabelValues("next_sync", "eos")))

	c := NewStatCollector(e)
	// 7个固定指标，加上音视频两个track的索引大小
	assert.Equal(t, 9, testutil.CollectAndCount(c))
	assert.Equal(t, nil, reg.Register(c))
}
