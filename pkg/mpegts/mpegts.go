// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package mpegts 包含mpegts transport stream的section、PES的解析和打包
package mpegts

import "github.com/q191201771/tsextractor/pkg/base"

// MPEG: Moving Picture Experts Group

// TS Packet Header
const (
	syncByte = uint8(0x47)

	PidPat = uint16(0)

	// 打包时使用的默认值
	PidPmt   = uint16(0x1000)
	PidVideo = uint16(0x100)
	PidAudio = uint16(0x101)

	PidNull = uint16(0x1FFF)

	// ------------------------------------------
	// <iso13818-1.pdf> <Table 2-5> <page 38/174>
	// ------------------------------------------
	AdaptationFieldControlReserved = uint8(0) // Reserved for future use by ISO/IEC
	AdaptationFieldControlNo       = uint8(1) // No adaptation_field, payload only
	AdaptationFieldControlOnly     = uint8(2) // Adaptation_field only, no payload
	AdaptationFieldControlFollowed = uint8(3) // Adaptation_field followed by payload
)

// PMT
const (
	// -----------------------------------------------------------------------------
	// <iso13818-1.pdf> <Table 2-29 Stream type assignments> <page 66/174>
	// 0x0F ISO/IEC 13818-7 Audio with ADTS transport syntax
	// 0x1B AVC video stream as defined in ITU-T Rec. H.264 | ISO/IEC 14496-10 Video
	// -----------------------------------------------------------------------------
	StreamTypeMpeg1Video = uint8(0x01)
	StreamTypeMpeg2Video = uint8(0x02)
	StreamTypeMpeg1Audio = uint8(0x03)
	StreamTypeMpeg2Audio = uint8(0x04)
	StreamTypePrivate    = uint8(0x06)
	StreamTypeAac        = uint8(0x0F)
	StreamTypeAvc        = uint8(0x1B)
	StreamTypeHevc       = uint8(0x24)
	StreamTypeAc3        = uint8(0x81)
	StreamTypeEac3       = uint8(0x87)
)

// PES
const (
	// -----------------------------------------------------------------
	// <iso13818-1.pdf> <Table 2-18-Stream_id assignments> <page 52/174>
	// -----------------------------------------------------------------
	StreamIdProgramStreamMap = uint8(0xBC)
	StreamIdPrivate1         = uint8(0xBD)
	StreamIdPadding          = uint8(0xBE)
	StreamIdPrivate2         = uint8(0xBF)
	StreamIdAudio            = uint8(0xC0) // 110x xxxx
	StreamIdVideo            = uint8(0xE0) // 1110 xxxx
	StreamIdEcm              = uint8(0xF0)
	StreamIdEmm              = uint8(0xF1)
	StreamIdDsmcc            = uint8(0xF2)
	StreamIdH2221TypeE       = uint8(0xF8)
	StreamIdProgramDirectory = uint8(0xFF)
)

// 打包时PTS相对于PCR的延迟，单位为90kHz
const delay uint64 = 63000

// PtsWrap PTS、DTS为33位
const PtsWrap = uint64(1) << 33

// Registration descriptor中的format_identifier
const (
	FormatIdentifierAc3  = uint32(0x41432d33) // "AC-3"
	FormatIdentifierEac3 = uint32(0x45414333) // "EAC3"
	FormatIdentifierHevc = uint32(0x48455643) // "HEVC"
)

var ErrMpegts = base.ErrMpegts
