// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package h2645_test

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/h2645"
)

var (
	sps = []byte{0x67, 0x64, 0x00, 0x1f}
	pps = []byte{0x68, 0xee, 0x3c}
	idr = []byte{0x65, 0x88, 0x84}
	p   = []byte{0x41, 0x9a, 0x02}
)

func TestIterateNaluAnnexb(t *testing.T) {
	// 3字节和4字节start code混用
	nals := append(h2645.JoinNaluAnnexb(sps, pps), append([]byte{0, 0, 1}, idr...)...)
	var out [][]byte
	err := h2645.IterateNaluAnnexb(nals, func(nal []byte) {
		out = append(out, nal)
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, [][]byte{sps, pps, idr}, out)

	err = h2645.IterateNaluAnnexb([]byte{1, 2, 3}, func(nal []byte) {})
	assert.Equal(t, base.ErrH2645, err)
}

func TestIsKeyFrameAnnexb(t *testing.T) {
	assert.Equal(t, true, h2645.IsKeyFrameAnnexb(true, h2645.JoinNaluAnnexb(sps, pps, idr)))
	assert.Equal(t, false, h2645.IsKeyFrameAnnexb(true, h2645.JoinNaluAnnexb(p)))

	// h265 IDR_W_RADL: type 19 -> 0x26 0x01
	assert.Equal(t, true, h2645.IsKeyFrameAnnexb(false, h2645.JoinNaluAnnexb([]byte{0x26, 0x01, 0xaf})))
	// h265 TRAIL_R: type 1 -> 0x02 0x01
	assert.Equal(t, false, h2645.IsKeyFrameAnnexb(false, h2645.JoinNaluAnnexb([]byte{0x02, 0x01, 0xaf})))
}

func TestExtractCodecConfigAnnexb(t *testing.T) {
	assert.Equal(t, h2645.JoinNaluAnnexb(sps, pps), h2645.ExtractCodecConfigAnnexb(true, h2645.JoinNaluAnnexb(sps, pps, idr)))
	assert.Equal(t, []byte(nil), h2645.ExtractCodecConfigAnnexb(true, h2645.JoinNaluAnnexb(p)))
}

func TestJoinNaluAvcc(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 3, 0x41, 0x9a, 0x02}, h2645.JoinNaluAvcc(p))
	assert.Equal(t, []byte(nil), h2645.JoinNaluAvcc())
}
