// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/mpegts"
	"github.com/q191201771/tsextractor/pkg/tsgen"
)

// 生成一个带音视频的ts文件，用于手动测试tsextractor
//
// Example:
//   ./bin/tsgen -o ./testdata/gen.ts -d 30000
//   ./bin/tsgen -o ./testdata/gen_hevc.ts -hevc -noaudio

func main() {
	defer nazalog.Sync()

	var (
		binInfoFlag = flag.Bool("v", false, "show bin info")
		o           = flag.String("o", "", "specify output ts file")
		d           = flag.Int("d", 10000, "duration in milliseconds")
		hevc        = flag.Bool("hevc", false, "use hevc instead of avc")
		fps         = flag.Int("fps", 25, "video fps")
		gop         = flag.Int("gop", 25, "gop size in frames")
		noAudio     = flag.Bool("noaudio", false, "disable audio")
		noVideo     = flag.Bool("novideo", false, "disable video")
		scramble    = flag.Bool("scramble", false, "mark video packets as scrambled")
	)
	flag.Parse()
	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.TsExtractorFullInfo)
		os.Exit(0)
	}
	if *o == "" {
		flag.Usage()
		base.OsExitAndWaitPressIfWindows(1)
	}

	var fw mpegts.FileWriter
	err := fw.Create(*o)
	nazalog.Assert(nil, err)
	defer fw.Dispose()

	ret, err := tsgen.Generate(&fw, func(option *tsgen.Option) {
		option.DurationMs = *d
		option.Hevc = *hevc
		option.VideoFps = *fps
		option.GopSize = *gop
		option.EnableAudio = !*noAudio
		option.EnableVideo = !*noVideo
		option.ScrambleVideo = *scramble
	})
	if err != nil {
		nazalog.Errorf("generate failed. err=%+v", err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	nazalog.Infof("generate succ. file=%s, result=%+v", fw.Name(), ret)
}
