// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/extractor"
	"github.com/q191201771/tsextractor/pkg/tsmetrics"
	"golang.org/x/sync/errgroup"
)

// 解析transport stream文件（或者stdin、srt输入），打印track信息，可选seek，并发读取所有track，可选将每个track的数据落盘
//
// Example:
//   ./bin/tsextractor -i ./testdata/test.ts
//   ./bin/tsextractor -i ./testdata/test.ts -seek 5000 -mode next_sync -o ./dump
//   cat test.ts | ./bin/tsextractor -i -
//   ./bin/tsextractor -c ./conf/tsextractor.conf.json

var Log = nazalog.GetGlobalLogger()

func main() {
	defer nazalog.Sync()

	config := parseFlag()
	initLog(config.Log)
	base.LogoutStartInfo()
	Log.Infof("config=%+v", config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, dispose, err := openSource(ctx, config.Input)
	if err != nil {
		Log.Errorf("open source failed. input=%+v, err=%+v", config.Input, err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	defer dispose()

	if mime, confidence, ok := extractor.Sniff(source); ok {
		Log.Infof("sniff succ. mime=%s, confidence=%.2f", mime, confidence)
	} else {
		Log.Warnf("sniff failed, try to open anyway.")
	}

	var (
		reg     *prometheus.Registry
		metrics *tsmetrics.Metrics
	)
	if config.Metrics.Enable {
		reg = prometheus.NewRegistry()
		metrics = tsmetrics.New(reg)
	}

	e, err := extractor.Open(source, func(option *extractor.Option) {
		option.ResyncTimeoutMs = config.Extractor.ResyncTimeoutMs
		option.InitProbeTimeoutMs = config.Extractor.InitProbeTimeoutMs
		option.DurationProbeTimeoutMs = config.Extractor.DurationProbeTimeoutMs
		option.PruneAllTracksOnSeekBeyond = config.Extractor.PruneAllTracksOnSeekBeyond
		if metrics != nil {
			option.Observer = metrics
		}
	})
	if err != nil {
		Log.Errorf("open extractor failed. err=%+v", err)
		base.OsExitAndWaitPressIfWindows(1)
	}

	if reg != nil {
		reg.MustRegister(tsmetrics.NewStatCollector(e))
		go runMetrics(config.Metrics.Addr, reg)
	}

	go base.RunSignalHandler(func() {
		Log.Infof("recv signal, stop. stat=%+v", e.Stat())
		dispose()
	})

	Log.Infof("duration=%dms", e.DurationUs()/1000)
	for _, t := range e.Tracks() {
		Log.Infof("track. key=%s, kind=%s, seek reference=%t, format=%+v",
			t.UniqueKey(), t.Kind().ReadableString(), t.IsSeekReference(), t.Format())
	}

	g, _ := errgroup.WithContext(ctx)
	for _, t := range e.Tracks() {
		t := t
		var opt *extractor.ReadOption
		if config.Seek.TimeMs >= 0 && t.IsSeekReference() {
			opt = extractor.NewSeekReadOption(config.Seek.TimeMs*1000, base.ParseSeekMode(config.Seek.Mode))
		}
		g.Go(func() error {
			return drainTrack(t, opt, config.Output)
		})
	}
	if err = g.Wait(); err != nil {
		Log.Errorf("read track failed. err=%+v", err)
	}
	Log.Infof("done. stat=%+v", e.Stat())
}

// drainTrack 读取track直到结束
func drainTrack(t *extractor.Track, opt *extractor.ReadOption, output OutputConfig) error {
	var dump *base.DumpFile
	if output.DumpDir != "" {
		dump = base.NewDumpFile()
		filename := filepath.Join(output.DumpDir, fmt.Sprintf("%s.%s.tsdump", t.UniqueKey(), t.Kind().ReadableString()))
		if err := dump.OpenToWrite(filename); err != nil {
			return err
		}
		defer dump.Close()
	}

	var (
		count         int
		syncCount     int
		discontinuity int
		firstTimeUs   = base.NoTimestamp
		lastTimeUs    = base.NoTimestamp
	)
	for {
		au, err := t.Read(opt)
		opt = nil
		if err == base.ErrDiscontinuity {
			discontinuity++
			continue
		}
		if err != nil {
			Log.Infof("[%s] track finished. count=%d, sync=%d, discontinuity=%d, time=[%d, %d], err=%+v",
				t.UniqueKey(), count, syncCount, discontinuity, firstTimeUs, lastTimeUs, err)
			if errors.Is(err, base.ErrEndOfStream) || errors.Is(err, base.ErrSourceDisposed) {
				return nil
			}
			return err
		}

		count++
		if au.IsSync {
			syncCount++
		}
		if au.HasTime() {
			if firstTimeUs == base.NoTimestamp {
				firstTimeUs = au.TimeUs
			}
			lastTimeUs = au.TimeUs
		}
		if output.PrintAccessUnit {
			Log.Debugf("[%s] %s", t.UniqueKey(), au.DebugString())
		}
		if dump != nil {
			if err = dump.WriteAccessUnit(t.Kind(), au); err != nil {
				return err
			}
		}
	}
}

func runMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	Log.Infof("start metrics listen. addr=%s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		Log.Errorf("metrics listen failed. addr=%s, err=%+v", addr, err)
	}
}

func initLog(opt nazalog.Option) {
	if err := nazalog.Init(func(option *nazalog.Option) {
		*option = opt
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "initial log failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	Log.Info("initial log succ.")
}

func parseFlag() *Config {
	binInfoFlag := flag.Bool("v", false, "show bin info")
	cf := flag.String("c", "", "specify conf file")
	i := flag.String("i", "", "specify input ts file, - means stdin")
	seekMs := flag.Int64("seek", -1, "seek to this time before reading, in milliseconds")
	mode := flag.String("mode", "", "seek mode: previous_sync, next_sync, closest_sync, closest")
	o := flag.String("o", "", "dump every track into this dir")
	m := flag.String("metrics", "", "serve prometheus metrics on this addr, e.g. :9150")
	flag.Parse()

	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.TsExtractorFullInfo)
		os.Exit(0)
	}
	if *cf == "" && *i == "" {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `
Example:
  %s -i ./testdata/test.ts
  %s -i ./testdata/test.ts -seek 5000 -mode next_sync -o ./dump
  cat ./testdata/test.ts | %s -i -
  %s -c ./conf/tsextractor.conf.json
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		base.OsExitAndWaitPressIfWindows(1)
	}

	rawContent := []byte("{}")
	if *cf != "" {
		rawContent = base.WrapReadConfigFile(*cf, nil, nil)
	}
	config, err := LoadConf(rawContent)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load conf failed. file=%s, err=%+v\n", *cf, err)
		base.OsExitAndWaitPressIfWindows(1)
	}

	// 命令行参数优先
	if *i == "-" {
		config.Input.Type = InputTypeStdin
	} else if *i != "" {
		config.Input.Type = InputTypeFile
		config.Input.Filename = *i
	}
	if *seekMs >= 0 {
		config.Seek.TimeMs = *seekMs
	}
	if *mode != "" {
		config.Seek.Mode = *mode
	}
	if *o != "" {
		config.Output.DumpDir = *o
	}
	if *m != "" {
		config.Metrics.Enable = true
		config.Metrics.Addr = *m
	}
	return config
}
