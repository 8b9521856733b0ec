// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/tsextractor/pkg/base"
)

// -----------------------------------------------------------
// <iso13818-1.pdf>
// <2.4.3.6 PES packet> <page 49/174>
// <Table E.1 - PES packet header example> <page 142/174>
// <F.0.2 PES packet> <page 144/174>
// packet_start_code_prefix  [24b] *** always 0x00, 0x00, 0x01
// stream_id                 [8b]  *
// PES_packet_length         [16b] **
// '10'                      [2b]
// PES_scrambling_control    [2b]
// PES_priority              [1b]
// data_alignment_indicator  [1b]
// copyright                 [1b]
// original_or_copy          [1b]  *
// PTS_DTS_flags             [2b]
// ESCR_flag                 [1b]
// ES_rate_flag              [1b]
// DSM_trick_mode_flag       [1b]
// additional_copy_info_flag [1b]
// PES_CRC_flag              [1b]
// PES_extension_flag        [1b]  *
// PES_header_data_length    [8b]  *
// -----------------------------------------------------------
type Pes struct {
	pscp       uint32
	sid        uint8
	ppl        uint16
	pad1       uint8
	ptsDtsFlag uint8
	pad2       uint8
	phdl       uint8
	pts        uint64
	dts        uint64
}

// ParsePes
//
// @return length: PES header的长度，也即ES数据在b中的起始位置
func ParsePes(b []byte) (pes Pes, length int, err error) {
	if len(b) < 6 {
		return pes, 0, base.ErrShortBuffer
	}
	br := nazabits.NewBitReader(b)
	pes.pscp, _ = br.ReadBits32(24)
	pes.sid, _ = br.ReadBits8(8)
	pes.ppl, _ = br.ReadBits16(16)
	if pes.pscp != 1 {
		return pes, 0, base.NewErrTsMalformed("invalid pes start code. pscp=%d", pes.pscp)
	}

	if !hasOptionalPesHeader(pes.sid) {
		return pes, 6, nil
	}

	if len(b) < 9 {
		return pes, 0, base.ErrShortBuffer
	}
	pes.pad1, _ = br.ReadBits8(8)
	pes.ptsDtsFlag, _ = br.ReadBits8(2)
	pes.pad2, _ = br.ReadBits8(6)
	pes.phdl, _ = br.ReadBits8(8)

	length = 9 + int(pes.phdl)
	if len(b) < length {
		return pes, 0, base.ErrShortBuffer
	}

	if pes.ptsDtsFlag&0x2 != 0 {
		if pes.phdl < 5 {
			return pes, 0, base.NewErrTsMalformed("pts flag set but header data length=%d", pes.phdl)
		}
		_, pes.pts = readPts(b[9:])
	}
	if pes.ptsDtsFlag == 0x3 {
		if pes.phdl < 10 {
			return pes, 0, base.NewErrTsMalformed("dts flag set but header data length=%d", pes.phdl)
		}
		_, pes.dts = readPts(b[14:])
	} else {
		pes.dts = pes.pts
	}

	return
}

func (pes *Pes) StreamId() uint8 {
	return pes.sid
}

// PacketLength PES_packet_length，为0时表示长度不限（只允许视频）
func (pes *Pes) PacketLength() uint16 {
	return pes.ppl
}

func (pes *Pes) HasPts() bool {
	return pes.ptsDtsFlag&0x2 != 0
}

// Pts 单位为90kHz
func (pes *Pes) Pts() uint64 {
	return pes.pts
}

func (pes *Pes) Dts() uint64 {
	return pes.dts
}

// PesScramblingControl PES层加扰标志
func (pes *Pes) PesScramblingControl() uint8 {
	return (pes.pad1 >> 4) & 0x3
}

// read pts or dts
func readPts(b []byte) (fb uint8, pts uint64) {
	fb = b[0] >> 4
	pts |= uint64((b[0]>>1)&0x07) << 30
	pts |= (uint64(b[1])<<8 | uint64(b[2])) >> 1 << 15
	pts |= (uint64(b[3])<<8 | uint64(b[4])) >> 1
	return
}

// <iso13818-1.pdf> <2.4.3.7> 这些stream_id的PES没有optional header
func hasOptionalPesHeader(sid uint8) bool {
	switch sid {
	case StreamIdProgramStreamMap, StreamIdPadding, StreamIdPrivate2, StreamIdEcm, StreamIdEmm,
		StreamIdProgramDirectory, StreamIdDsmcc, StreamIdH2221TypeE:
		return false
	}
	return true
}
