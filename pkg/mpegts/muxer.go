// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"io"
)

// Muxer 将多路ES帧写成单节目的transport stream
//
// 流程与hls切片写入一致：先写PAT、PMT，再写按帧打包的PES
type Muxer struct {
	w      io.Writer
	option MuxerOption

	patCc   uint8
	pmtCc   uint8
	streams []*muxerStream

	patPmtWritten bool
	written       int64
}

type MuxerOption struct {
	ProgramNumber uint16
	PmtPid        uint16

	// PcrPid 为0时使用第一个视频流，没有视频流时使用第一个流
	PcrPid uint16

	// WritePatPmtOnKey 每个视频关键帧之前重复写PAT、PMT
	WritePatPmtOnKey bool
}

var defaultMuxerOption = MuxerOption{
	ProgramNumber:    1,
	PmtPid:           PidPmt,
	PcrPid:           0,
	WritePatPmtOnKey: true,
}

type ModMuxerOption func(option *MuxerOption)

type muxerStream struct {
	element   PmtProgramElement
	sid       uint8
	cc        uint8
	scrambled bool
}

func NewMuxer(w io.Writer, modOptions ...ModMuxerOption) *Muxer {
	option := defaultMuxerOption
	for _, fn := range modOptions {
		fn(&option)
	}
	return &Muxer{
		w:      w,
		option: option,
		// 第一个packet的cc为0
		patCc: 0x0F,
		pmtCc: 0x0F,
	}
}

// AddStream 需要在写入第一帧之前调用
func (m *Muxer) AddStream(pid uint16, streamType uint8, descriptors ...Descriptor) {
	m.streams = append(m.streams, &muxerStream{
		element: PmtProgramElement{
			StreamType:  streamType,
			Pid:         pid,
			Descriptors: descriptors,
		},
		sid: streamIdOf(streamType),
		cc:  0x0F,
	})
}

// SetScrambled 之后该pid的packet都会带上transport_scrambling_control
func (m *Muxer) SetScrambled(pid uint16, scrambled bool) {
	if s := m.findStream(pid); s != nil {
		s.scrambled = scrambled
	}
}

func (m *Muxer) WritePatPmt() error {
	m.patCc++
	pat := NewPatSection(1, 0, NewPatProgramElement(m.option.ProgramNumber, m.option.PmtPid)).PackPacket(PidPat, m.patCc)

	elements := make([]PmtProgramElement, 0, len(m.streams))
	for _, s := range m.streams {
		elements = append(elements, s.element)
	}
	m.pmtCc++
	pmt := NewPmtSection(m.option.ProgramNumber, 0, m.pcrPid(), elements...).PackPacket(m.option.PmtPid, m.pmtCc)

	m.patPmtWritten = true
	if err := m.WriteRaw(pat); err != nil {
		return err
	}
	return m.WriteRaw(pmt)
}

// WriteFrame
//
// @param pts, dts: 单位为90kHz
func (m *Muxer) WriteFrame(pid uint16, pts uint64, dts uint64, key bool, raw []byte) error {
	s := m.findStream(pid)
	if s == nil {
		Log.Warnf("write frame to unknown pid. pid=%d", pid)
		return ErrMpegts
	}

	isVideo := s.sid == StreamIdVideo
	if !m.patPmtWritten || (m.option.WritePatPmtOnKey && isVideo && key) {
		if err := m.WritePatPmt(); err != nil {
			return err
		}
	}

	frame := Frame{
		Pts:       pts,
		Dts:       dts,
		Cc:        s.cc,
		Pid:       pid,
		Sid:       s.sid,
		Key:       key,
		Scrambled: s.scrambled,
		Raw:       raw,
	}
	packets := frame.Pack()
	s.cc = frame.Cc
	return m.WriteRaw(packets)
}

// WriteRaw 直接写入数据，比如测试时写入垃圾数据
func (m *Muxer) WriteRaw(b []byte) error {
	n, err := m.w.Write(b)
	m.written += int64(n)
	return err
}

// Written 已写入的字节数
func (m *Muxer) Written() int64 {
	return m.written
}

func (m *Muxer) findStream(pid uint16) *muxerStream {
	for _, s := range m.streams {
		if s.element.Pid == pid {
			return s
		}
	}
	return nil
}

func (m *Muxer) pcrPid() uint16 {
	if m.option.PcrPid != 0 {
		return m.option.PcrPid
	}
	for _, s := range m.streams {
		if s.sid == StreamIdVideo {
			return s.element.Pid
		}
	}
	if len(m.streams) > 0 {
		return m.streams[0].element.Pid
	}
	return PidNull
}

func streamIdOf(streamType uint8) uint8 {
	switch streamType {
	case StreamTypeMpeg1Video, StreamTypeMpeg2Video, StreamTypeAvc, StreamTypeHevc:
		return StreamIdVideo
	case StreamTypeMpeg1Audio, StreamTypeMpeg2Audio, StreamTypeAac:
		return StreamIdAudio
	}
	return StreamIdPrivate1
}
