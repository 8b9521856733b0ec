// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package tsgen 生成带音视频的transport stream，用于测试以及压测
package tsgen

import (
	"io"

	"github.com/q191201771/tsextractor/pkg/aac"
	"github.com/q191201771/tsextractor/pkg/h2645"
	"github.com/q191201771/tsextractor/pkg/mpegts"
)

type Option struct {
	DurationMs int

	EnableVideo bool
	Hevc        bool
	VideoFps    int
	GopSize     int // 单位帧
	// VideoFrameSize 非关键帧的大小，关键帧是它的4倍
	VideoFrameSize int

	EnableAudio     bool
	AudioFrameSize  int
	AudioFreqIndex  uint8 // 4=44100
	AudioChannelNum uint8

	// ScrambleVideo 视频packet带上transport_scrambling_control
	ScrambleVideo bool
}

var defaultOption = Option{
	DurationMs:      10000,
	EnableVideo:     true,
	Hevc:            false,
	VideoFps:        25,
	GopSize:         25,
	VideoFrameSize:  1000,
	EnableAudio:     true,
	AudioFrameSize:  200,
	AudioFreqIndex:  4,
	AudioChannelNum: 2,
	ScrambleVideo:   false,
}

type ModOption func(option *Option)

type Result struct {
	VideoFrameCount int
	KeyFrameCount   int
	AudioFrameCount int
	Bytes           int64
}

// Generate 按dts交织写入音视频帧，所有时间戳从0开始
func Generate(w io.Writer, modOptions ...ModOption) (ret Result, err error) {
	option := defaultOption
	for _, fn := range modOptions {
		fn(&option)
	}

	muxer := mpegts.NewMuxer(w)
	if option.EnableVideo {
		if option.Hevc {
			muxer.AddStream(mpegts.PidVideo, mpegts.StreamTypeHevc)
		} else {
			muxer.AddStream(mpegts.PidVideo, mpegts.StreamTypeAvc)
		}
		muxer.SetScrambled(mpegts.PidVideo, option.ScrambleVideo)
	}
	if option.EnableAudio {
		muxer.AddStream(mpegts.PidAudio, mpegts.StreamTypeAac)
	}

	ascCtx := aac.AscContext{
		AudioObjectType:        2,
		SamplingFrequencyIndex: option.AudioFreqIndex,
		ChannelConfiguration:   option.AudioChannelNum,
	}
	audioFrameDurationUs, err := ascCtx.FrameDurationUs()
	if err != nil {
		return ret, err
	}
	videoFrameDurationUs := int64(1000000 / option.VideoFps)
	endUs := int64(option.DurationMs) * 1000

	var (
		videoIndex int
		audioIndex int
	)
	for {
		videoUs := int64(videoIndex) * videoFrameDurationUs
		audioUs := int64(audioIndex) * audioFrameDurationUs
		videoDone := !option.EnableVideo || videoUs >= endUs
		audioDone := !option.EnableAudio || audioUs >= endUs
		if videoDone && audioDone {
			break
		}

		if !videoDone && (audioDone || videoUs <= audioUs) {
			key := videoIndex%option.GopSize == 0
			raw := makeVideoFrame(option, videoIndex, key)
			ts := uint64(videoUs * 9 / 100)
			if err = muxer.WriteFrame(mpegts.PidVideo, ts, ts, key, raw); err != nil {
				return
			}
			ret.VideoFrameCount++
			if key {
				ret.KeyFrameCount++
			}
			videoIndex++
			continue
		}

		raw := makeAudioFrame(option, &ascCtx, audioIndex)
		ts := uint64(audioUs * 9 / 100)
		if err = muxer.WriteFrame(mpegts.PidAudio, ts, ts, false, raw); err != nil {
			return
		}
		ret.AudioFrameCount++
		audioIndex++
	}
	ret.Bytes = muxer.Written()
	return
}

// MakeFillBytes 生成不包含0x00的数据，避免出现起始码
func MakeFillBytes(n int, seed int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = uint8((seed+i)%254) + 1
	}
	return b
}

func makeVideoFrame(option Option, index int, key bool) []byte {
	if option.Hevc {
		if key {
			return h2645.JoinNaluAnnexb(
				[]byte{h2645.H265NaluTypeVps << 1, 0x01, 0x0C},
				[]byte{h2645.H265NaluTypeSps << 1, 0x01, 0x01},
				[]byte{h2645.H265NaluTypePps << 1, 0x01, 0xC1},
				append([]byte{h2645.H265NaluTypeSliceIdrNlp << 1, 0x01}, MakeFillBytes(option.VideoFrameSize*4, index)...),
			)
		}
		return h2645.JoinNaluAnnexb(
			append([]byte{h2645.H265NaluTypeSliceTrailR << 1, 0x01}, MakeFillBytes(option.VideoFrameSize, index)...),
		)
	}

	if key {
		return h2645.JoinNaluAnnexb(
			[]byte{0x67, 0x64, 0x00, 0x1F},
			[]byte{0x68, 0xEE, 0x3C, 0x80},
			append([]byte{0x65}, MakeFillBytes(option.VideoFrameSize*4, index)...),
		)
	}
	return h2645.JoinNaluAnnexb(
		append([]byte{0x41}, MakeFillBytes(option.VideoFrameSize, index)...),
	)
}

func makeAudioFrame(option Option, ascCtx *aac.AscContext, index int) []byte {
	raw := MakeFillBytes(option.AudioFrameSize, index)
	return append(ascCtx.PackAdtsHeader(len(raw)), raw...)
}
