// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/nazalog"
)

func TestLoadConf(t *testing.T) {
	// 全部使用默认值
	config, err := LoadConf([]byte("{}"))
	assert.Equal(t, nil, err)
	assert.Equal(t, InputTypeFile, config.Input.Type)
	assert.Equal(t, uint16(6001), config.Input.SrtPort)
	assert.Equal(t, 10000, config.Extractor.ResyncTimeoutMs)
	assert.Equal(t, 20000, config.Extractor.InitProbeTimeoutMs)
	assert.Equal(t, true, config.Extractor.PruneAllTracksOnSeekBeyond)
	assert.Equal(t, int64(-1), config.Seek.TimeMs)
	assert.Equal(t, "previous_sync", config.Seek.Mode)
	assert.Equal(t, false, config.Metrics.Enable)
	assert.Equal(t, nazalog.LevelInfo, config.Log.Level)
	assert.Equal(t, true, config.Log.IsToStdout)

	// 显式配置的值，即使是零值也保留
	config, err = LoadConf([]byte(`{
  "input": {"type": "srt", "srt_port": 7001, "srt_listen": true},
  "extractor": {"prune_all_tracks_on_seek_beyond": false, "resync_timeout_ms": 0},
  "seek": {"time_ms": 0, "mode": "next_sync"},
  "metrics": {"enable": true, "addr": ":19150"},
  "log": {"is_to_stdout": false}
}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, InputTypeSrt, config.Input.Type)
	assert.Equal(t, uint16(7001), config.Input.SrtPort)
	assert.Equal(t, true, config.Input.SrtListen)
	assert.Equal(t, "127.0.0.1", config.Input.SrtHost)
	assert.Equal(t, false, config.Extractor.PruneAllTracksOnSeekBeyond)
	assert.Equal(t, 0, config.Extractor.ResyncTimeoutMs)
	assert.Equal(t, int64(0), config.Seek.TimeMs)
	assert.Equal(t, "next_sync", config.Seek.Mode)
	assert.Equal(t, true, config.Metrics.Enable)
	assert.Equal(t, ":19150", config.Metrics.Addr)
	assert.Equal(t, false, config.Log.IsToStdout)

	_, err = LoadConf([]byte("not json"))
	assert.Equal(t, true, err != nil)
}
