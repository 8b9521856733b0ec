// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package extractor

import (
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/datasource"
	"github.com/q191201771/tsextractor/pkg/mpegts"
)

const (
	MimeMpeg2Ts = "video/mp2ts"

	sniffPacketNum  = 5
	sniffConfidence = float32(0.1)
)

// Sniff 从偏移0开始，连续5个packet的首字节都是0x47时认为是transport stream
//
// 只是结构上的粗略检查，所以置信度很低
func Sniff(source datasource.DataSource) (mime string, confidence float32, ok bool) {
	packet := make([]byte, base.TsPacketSize)
	for i := 0; i < sniffPacketNum; i++ {
		n, _ := source.ReadAt(packet, int64(i*base.TsPacketSize))
		if n != base.TsPacketSize {
			return "", 0, false
		}
		if _, err := mpegts.ParseTsPacketHeader(packet); err != nil {
			return "", 0, false
		}
	}
	return MimeMpeg2Ts, sniffConfidence, true
}
