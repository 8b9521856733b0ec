// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"encoding/json"

	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
)

const (
	InputTypeFile  = "file"
	InputTypeStdin = "stdin"
	InputTypeSrt   = "srt"
)

type Config struct {
	Input     InputConfig     `json:"input"`
	Extractor ExtractorConfig `json:"extractor"`
	Seek      SeekConfig      `json:"seek"`
	Output    OutputConfig    `json:"output"`
	Metrics   MetricsConfig   `json:"metrics"`
	Log       nazalog.Option  `json:"log"`
}

type InputConfig struct {
	// Type file, stdin, srt
	Type     string `json:"type"`
	Filename string `json:"filename"`

	SrtHost      string `json:"srt_host"`
	SrtPort      uint16 `json:"srt_port"`
	SrtListen    bool   `json:"srt_listen"`
	SrtStreamId  string `json:"srt_stream_id"`
	SrtLatencyMs int    `json:"srt_latency_ms"`

	// ReadTimeoutMs stdin以及srt输入等待数据的超时时间
	ReadTimeoutMs int `json:"read_timeout_ms"`
}

type ExtractorConfig struct {
	ResyncTimeoutMs            int  `json:"resync_timeout_ms"`
	InitProbeTimeoutMs         int  `json:"init_probe_timeout_ms"`
	DurationProbeTimeoutMs     int  `json:"duration_probe_timeout_ms"`
	PruneAllTracksOnSeekBeyond bool `json:"prune_all_tracks_on_seek_beyond"`
}

type SeekConfig struct {
	// TimeMs 小于0表示不seek
	TimeMs int64 `json:"time_ms"`

	// Mode previous_sync, next_sync, closest_sync, closest
	Mode string `json:"mode"`
}

type OutputConfig struct {
	// DumpDir 不为空时，每个track读出的数据写入该目录下的 <track>.tsdump 文件
	DumpDir string `json:"dump_dir"`

	// PrintAccessUnit 每个AccessUnit打一行日志
	PrintAccessUnit bool `json:"print_access_unit"`
}

type MetricsConfig struct {
	Enable bool   `json:"enable"`
	Addr   string `json:"addr"`
}

// LoadConf 配置文件中没有出现的字段使用默认值
func LoadConf(rawContent []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(rawContent, &config); err != nil {
		return nil, err
	}

	j, err := nazajson.New(rawContent)
	if err != nil {
		return nil, err
	}

	if !j.Exist("input.type") {
		config.Input.Type = InputTypeFile
	}
	if !j.Exist("input.srt_host") {
		config.Input.SrtHost = "127.0.0.1"
	}
	if !j.Exist("input.srt_port") {
		config.Input.SrtPort = 6001
	}
	if !j.Exist("input.srt_latency_ms") {
		config.Input.SrtLatencyMs = 120
	}
	if !j.Exist("input.read_timeout_ms") {
		config.Input.ReadTimeoutMs = 10000
	}

	if !j.Exist("extractor.resync_timeout_ms") {
		config.Extractor.ResyncTimeoutMs = 10000
	}
	if !j.Exist("extractor.init_probe_timeout_ms") {
		config.Extractor.InitProbeTimeoutMs = 20000
	}
	if !j.Exist("extractor.duration_probe_timeout_ms") {
		config.Extractor.DurationProbeTimeoutMs = 2000
	}
	if !j.Exist("extractor.prune_all_tracks_on_seek_beyond") {
		config.Extractor.PruneAllTracksOnSeekBeyond = true
	}

	if !j.Exist("seek.time_ms") {
		config.Seek.TimeMs = -1
	}
	if !j.Exist("seek.mode") {
		config.Seek.Mode = "previous_sync"
	}

	if !j.Exist("metrics.addr") {
		config.Metrics.Addr = ":9150"
	}

	if !j.Exist("log.level") {
		config.Log.Level = nazalog.LevelInfo
	}
	if !j.Exist("log.filename") {
		config.Log.Filename = "./logs/tsextractor.log"
	}
	if !j.Exist("log.is_to_stdout") {
		config.Log.IsToStdout = true
	}
	if !j.Exist("log.is_rotate_daily") {
		config.Log.IsRotateDaily = true
	}
	if !j.Exist("log.short_file_flag") {
		config.Log.ShortFileFlag = true
	}

	return &config, nil
}
