// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
)

// table_id
const (
	TsPsiIdPas = 0x00 // program_association_section
	TsPsiIdCas = 0x01 // conditional_access_section
	TsPsiIdPms = 0x02 // TS_program_map_section
)

// descriptor_tag
const (
	DescriptorTagRegistration               = 0x05
	DescriptorTagDataStreamAlignment        = 0x06
	DescriptorTagISO639LanguageAndAudioType = 0x0a
	DescriptorTagAVCVideo                   = 0x28
	DescriptorTagTeletext                   = 0x56
	DescriptorTagSubtitling                 = 0x59
	DescriptorTagAC3                        = 0x6a
	DescriptorTagEnhancedAC3                = 0x7a
	DescriptorTagExtension                  = 0x7f
)

type Descriptor struct {
	Length       uint8
	Tag          uint8
	Registration DescriptorRegistration
	Extension    DescriptorExtension
}

type DescriptorRegistration struct {
	AdditionalIdentificationInfo []byte
	FormatIdentifier             uint32
}

type DescriptorExtension struct {
	Tag     uint8
	Unknown []byte
}

func NewRegistrationDescriptor(formatIdentifier uint32) Descriptor {
	return Descriptor{
		Length:       4,
		Tag:          DescriptorTagRegistration,
		Registration: DescriptorRegistration{FormatIdentifier: formatIdentifier},
	}
}

// PsiSection 用于生成PAT或PMT，只支持单个section
type PsiSection struct {
	tableId uint8

	// PAT中为transport_stream_id，PMT中为program_number
	tableIdExtension uint16
	version          uint8

	programs []PatProgramElement

	pcrPid   uint16
	elements []PmtProgramElement
}

func NewPatSection(tsid uint16, version uint8, programs ...PatProgramElement) *PsiSection {
	return &PsiSection{
		tableId:          TsPsiIdPas,
		tableIdExtension: tsid,
		version:          version,
		programs:         programs,
	}
}

func NewPmtSection(programNumber uint16, version uint8, pcrPid uint16, elements ...PmtProgramElement) *PsiSection {
	return &PsiSection{
		tableId:          TsPsiIdPms,
		tableIdExtension: programNumber,
		version:          version,
		pcrPid:           pcrPid,
		elements:         elements,
	}
}

// Pack
//
// @return: pointer_field(值为0)开始，CRC32结束
func (psi *PsiSection) Pack() []byte {
	data := psi.packTableData()

	// table_id_extension之后的5字节 + 表数据 + crc32
	sectionLength := 5 + len(data) + 4

	out := make([]byte, 1+3+sectionLength)
	bw := nazabits.NewBitWriter(out)
	bw.WriteBits8(8, 0) // pointer_field
	bw.WriteBits8(8, psi.tableId)
	bw.WriteBit(1) // section_syntax_indicator
	bw.WriteBit(0)
	bw.WriteBits8(2, 0xFF)
	bw.WriteBits16(12, uint16(sectionLength))
	bw.WriteBits16(16, psi.tableIdExtension)
	bw.WriteBits8(2, 0xFF)
	bw.WriteBits8(5, psi.version)
	bw.WriteBit(1)      // current_next_indicator
	bw.WriteBits8(8, 0) // section_number
	bw.WriteBits8(8, 0) // last_section_number
	copy(out[9:], data)

	crc := CalcCrc32(0xffffffff, out[1:len(out)-4])
	bele.BePutUint32(out[len(out)-4:], crc)
	return out
}

// PackPacket 将section打包成一个完整的TS packet，section不能超过一个packet
func (psi *PsiSection) PackPacket(pid uint16, cc uint8) []byte {
	section := psi.Pack()
	if len(section) > tsPacketSize-4 {
		Log.Warnf("psi section too long for one packet. pid=%d, len=%d", pid, len(section))
	}

	packet := make([]byte, tsPacketSize)
	packet[0] = syncByte
	packet[1] = 0x40 | uint8((pid>>8)&0x1F) // payload_unit_start_indicator
	packet[2] = uint8(pid & 0xFF)
	packet[3] = 0x10 | (cc & 0x0F)
	n := copy(packet[4:], section)
	for i := 4 + n; i < tsPacketSize; i++ {
		packet[i] = 0xFF
	}
	return packet
}

// ----- private -------------------------------------------------------------------------------------------------------

func (psi *PsiSection) packTableData() (out []byte) {
	switch psi.tableId {
	case TsPsiIdPas:
		for _, p := range psi.programs {
			out = appendBeUint16(out, p.pn)
			out = appendBeUint16(out, 0xE000|p.pmpid)
		}
	case TsPsiIdPms:
		out = appendBeUint16(out, 0xE000|psi.pcrPid)
		out = appendBeUint16(out, 0xF000) // program_info_length为0
		for _, e := range psi.elements {
			var ds []byte
			for _, d := range e.Descriptors {
				ds = append(ds, packDescriptor(d)...)
			}
			out = append(out, e.StreamType)
			out = appendBeUint16(out, 0xE000|e.Pid)
			out = appendBeUint16(out, 0xF000|uint16(len(ds)))
			out = append(out, ds...)
		}
	}
	return
}

// packDescriptor 只写入能识别的descriptor的内容，其他tag的内容为空
func packDescriptor(d Descriptor) []byte {
	var body []byte
	switch d.Tag {
	case DescriptorTagRegistration:
		body = make([]byte, 4, 4+len(d.Registration.AdditionalIdentificationInfo))
		bele.BePutUint32(body, d.Registration.FormatIdentifier)
		body = append(body, d.Registration.AdditionalIdentificationInfo...)
	case DescriptorTagExtension:
		body = append([]byte{d.Extension.Tag}, d.Extension.Unknown...)
	}
	return append([]byte{d.Tag, uint8(len(body))}, body...)
}

func appendBeUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	bele.BePutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}
