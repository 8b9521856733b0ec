// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package innertest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/nazamd5"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/datasource"
	"github.com/q191201771/tsextractor/pkg/extractor"
	"github.com/q191201771/tsextractor/pkg/mpegts"
	"github.com/q191201771/tsextractor/pkg/tsgen"
	"github.com/q191201771/tsextractor/pkg/tsmetrics"
	"golang.org/x/sync/errgroup"
)

// 生成一个ts文件
// 分别以file和live两种数据源打开，并发读取所有track，将每个track落盘为dump文件
// 对比两份dump文件是否完全一致，并检查帧数、关键帧数、时间戳是否和生成时一致

var tt *testing.T

func Entry(t *testing.T) {
	tt = t

	dir := t.TempDir()
	tsFilename := filepath.Join(dir, "gen.ts")

	var fw mpegts.FileWriter
	err := fw.Create(tsFilename)
	assert.Equal(t, nil, err)
	ret, err := tsgen.Generate(&fw, func(option *tsgen.Option) {
		option.DurationMs = 4000
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, fw.Dispose())
	Log.Infof("generate succ. file=%s, result=%+v", tsFilename, ret)

	// file
	fileDumpDir := filepath.Join(dir, "file")
	fs, err := datasource.OpenFile(tsFilename)
	assert.Equal(t, nil, err)
	reg := prometheus.NewRegistry()
	metrics := tsmetrics.New(reg)
	e, err := extractor.Open(fs, func(option *extractor.Option) {
		option.DurationProbeTimeoutMs = 60000
		option.Observer = metrics
	})
	assert.Equal(t, nil, err)
	d := e.DurationUs()
	assert.Equal(t, true, d > 3000000 && d < 5000000)
	fileDumps := dumpAllTracks(e, fileDumpDir)
	assert.Equal(t, nil, fs.Dispose())
	assert.Equal(t, float64(ret.Bytes/base.TsPacketSize), testutil.ToFloat64(metrics.Packets))

	// live
	liveDumpDir := filepath.Join(dir, "live")
	fp, err := os.Open(tsFilename)
	assert.Equal(t, nil, err)
	defer fp.Close()
	ls := datasource.NewLiveSource()
	go func() {
		_, _ = ls.ReadFrom(fp)
	}()
	e2, err := extractor.Open(ls)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(0), e2.DurationUs())
	liveDumps := dumpAllTracks(e2, liveDumpDir)

	assert.Equal(t, len(fileDumps), len(liveDumps))
	for kind, filename := range fileDumps {
		a, err := os.ReadFile(filename)
		assert.Equal(t, nil, err)
		b, err := os.ReadFile(liveDumps[kind])
		assert.Equal(t, nil, err)
		assert.Equal(t, nazamd5.Md5(a), nazamd5.Md5(b), kind.ReadableString())
	}

	video := readDump(fileDumps[base.MediaKindVideo])
	assert.Equal(t, ret.VideoFrameCount, len(video))
	var syncCount int
	for i, m := range video {
		assert.Equal(t, base.MediaKindVideo, m.Kind())
		assert.Equal(t, uint32(i*40), m.Timestamp)
		if m.IsSync() {
			syncCount++
		}
	}
	assert.Equal(t, ret.KeyFrameCount, syncCount)

	audio := readDump(fileDumps[base.MediaKindAudio])
	assert.Equal(t, ret.AudioFrameCount, len(audio))
	for i := 1; i < len(audio); i++ {
		assert.Equal(t, true, audio[i].Timestamp >= audio[i-1].Timestamp)
	}
}

// dumpAllTracks 并发读取所有track直到EOS，返回每个track的dump文件名
func dumpAllTracks(e *extractor.Extractor, dir string) map[base.MediaKind]string {
	ret := make(map[base.MediaKind]string)
	var g errgroup.Group
	for _, t := range e.Tracks() {
		t := t
		filename := filepath.Join(dir, fmt.Sprintf("%s.tsdump", t.Kind().ReadableString()))
		ret[t.Kind()] = filename
		g.Go(func() error {
			dump := base.NewDumpFile()
			if err := dump.OpenToWrite(filename); err != nil {
				return err
			}
			defer dump.Close()
			for {
				au, err := t.Read(nil)
				if err == base.ErrDiscontinuity {
					continue
				}
				if err == base.ErrEndOfStream {
					return nil
				}
				if err != nil {
					return err
				}
				if err = dump.WriteAccessUnit(t.Kind(), au); err != nil {
					return err
				}
			}
		})
	}
	assert.Equal(tt, nil, g.Wait())
	return ret
}

func readDump(filename string) (ret []base.DumpFileMessage) {
	dump := base.NewDumpFile()
	err := dump.OpenToRead(filename)
	assert.Equal(tt, nil, err)
	defer dump.Close()
	for {
		m, err := dump.ReadOneMessage()
		if errors.Is(err, io.EOF) {
			return
		}
		assert.Equal(tt, nil, err)
		ret = append(ret, m)
	}
}
