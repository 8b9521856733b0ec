// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

const (
	MimeContainerMpeg2Ts = "video/mp2ts"

	MimeVideoAvc   = "video/avc"
	MimeVideoHevc  = "video/hevc"
	MimeVideoMpeg2 = "video/mpeg2"

	MimeAudioAac  = "audio/mp4a-latm"
	MimeAudioMpeg = "audio/mpeg"
	MimeAudioAc3  = "audio/ac3"
	MimeAudioEac3 = "audio/eac3"
)

// Format 一个track的格式描述
type Format struct {
	Mime       string
	Kind       MediaKind
	StreamType uint8
	Pid        uint16

	// DurationUs 整个track的时长，0表示未知
	DurationUs int64

	// 音频
	SampleRate   int
	ChannelCount int

	// CodecConfig 视频为Annexb格式的SPS、PPS（h265还包含VPS），音频为AudioSpecificConfig
	CodecConfig []byte

	// Scrambled 传输层加扰
	Scrambled bool
}

func (f *Format) Clone() *Format {
	if f == nil {
		return nil
	}
	c := *f
	if f.CodecConfig != nil {
		c.CodecConfig = append([]byte(nil), f.CodecConfig...)
	}
	return &c
}
