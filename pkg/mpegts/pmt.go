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

// Pmt
//
// ----------------------------------------
// Program Map Table
// <iso13818-1.pdf> <2.4.4.8> <page 64/174>
// table_id                 [8b]  *
// section_syntax_indicator [1b]
// 0                        [1b]
// reserved                 [2b]
// section_length           [12b] **
// program_number           [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// reserved                 [3b]
// PCR_PID                  [13b] **
// reserved                 [4b]
// program_info_length      [12b] **
// -----loop-----
// stream_type              [8b]  *
// reserved                 [3b]
// elementary_PID           [13b] **
// reserved                 [4b]
// ES_info_length_length    [12b] **
// --------------
// CRC32                    [32b] ****
// ----------------------------------------
type Pmt struct {
	tid             uint8
	ssi             uint8
	sl              uint16
	pn              uint16
	vn              uint8
	cni             uint8
	sn              uint8
	lsn             uint8
	pp              uint16
	pil             uint16
	ProgramElements []PmtProgramElement
	crc32           uint32
}

type PmtProgramElement struct {
	StreamType  uint8
	Pid         uint16
	Length      uint16
	Descriptors []Descriptor
}

// ParsePmt
//
// @param b: 从table_id开始
func ParsePmt(b []byte) (pmt Pmt, err error) {
	if len(b) < 12 {
		return pmt, base.ErrShortBuffer
	}
	br := nazabits.NewBitReader(b)
	pmt.tid, _ = br.ReadBits8(8)
	pmt.ssi, _ = br.ReadBits8(1)
	_, _ = br.ReadBits8(3)
	pmt.sl, _ = br.ReadBits16(12)
	if pmt.tid != TsPsiIdPms {
		return pmt, base.NewErrTsMalformed("unexpected pmt table id. tid=%d", pmt.tid)
	}
	if pmt.sl < 13 || len(b) < 3+int(pmt.sl) {
		return pmt, base.NewErrTsMalformed("invalid pmt section length. sl=%d, buf=%d", pmt.sl, len(b))
	}
	if !VerifyCrc32(b[:3+pmt.sl]) {
		return pmt, base.NewErrTsMalformed("pmt crc32 mismatch")
	}
	pmt.pn, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(2)
	pmt.vn, _ = br.ReadBits8(5)
	pmt.cni, _ = br.ReadBits8(1)
	pmt.sn, _ = br.ReadBits8(8)
	pmt.lsn, _ = br.ReadBits8(8)
	_, _ = br.ReadBits8(3)
	pmt.pp, _ = br.ReadBits16(13)
	_, _ = br.ReadBits8(4)
	pmt.pil, _ = br.ReadBits16(12)
	if pmt.pil > pmt.sl-13 {
		return pmt, base.NewErrTsMalformed("invalid program info length. pil=%d, sl=%d", pmt.pil, pmt.sl)
	}
	if pmt.pil != 0 {
		_, _ = br.ReadBytes(uint(pmt.pil))
	}

	length := int(pmt.sl) - 13 - int(pmt.pil)
	for i := 0; i+5 <= length; {
		var ppe PmtProgramElement
		ppe.StreamType, _ = br.ReadBits8(8)
		_, _ = br.ReadBits8(3)
		ppe.Pid, _ = br.ReadBits16(13)
		_, _ = br.ReadBits8(4)
		ppe.Length, _ = br.ReadBits16(12)
		i += 5
		if i+int(ppe.Length) > length {
			return pmt, base.NewErrTsMalformed("invalid es info length. pid=%d, length=%d", ppe.Pid, ppe.Length)
		}
		if ppe.Length != 0 {
			info, _ := br.ReadBytes(uint(ppe.Length))
			ppe.Descriptors = parseDescriptors(info)
			i += int(ppe.Length)
		}
		pmt.ProgramElements = append(pmt.ProgramElements, ppe)
	}
	pmt.crc32, _ = br.ReadBits32(32)

	return
}

func (pmt *Pmt) SearchPid(pid uint16) *PmtProgramElement {
	for i := range pmt.ProgramElements {
		if pmt.ProgramElements[i].Pid == pid {
			return &pmt.ProgramElements[i]
		}
	}
	return nil
}

func (pmt *Pmt) ProgramNumber() uint16 {
	return pmt.pn
}

func (pmt *Pmt) PcrPid() uint16 {
	return pmt.pp
}

func (pmt *Pmt) Version() uint8 {
	return pmt.vn
}

// RegistrationFormatIdentifier 如果存在registration descriptor，返回其format_identifier
func (ppe *PmtProgramElement) RegistrationFormatIdentifier() (uint32, bool) {
	for _, d := range ppe.Descriptors {
		if d.Tag == DescriptorTagRegistration {
			return d.Registration.FormatIdentifier, true
		}
	}
	return 0, false
}

// HasDescriptor 是否包含tag类型的descriptor
func (ppe *PmtProgramElement) HasDescriptor(tag uint8) bool {
	for _, d := range ppe.Descriptors {
		if d.Tag == tag {
			return true
		}
	}
	return false
}

// 只解析本package关心的descriptor，其他的只保留tag和length
func parseDescriptors(b []byte) (ret []Descriptor) {
	for len(b) >= 2 {
		d := Descriptor{
			Tag:    b[0],
			Length: b[1],
		}
		if len(b) < 2+int(d.Length) {
			Log.Warnf("descriptor too short. tag=%d, length=%d, remain=%d", d.Tag, d.Length, len(b)-2)
			return
		}
		body := b[2 : 2+int(d.Length)]
		switch d.Tag {
		case DescriptorTagRegistration:
			if len(body) >= 4 {
				d.Registration.FormatIdentifier = uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
				d.Registration.AdditionalIdentificationInfo = append([]byte(nil), body[4:]...)
			}
		case DescriptorTagExtension:
			if len(body) >= 1 {
				d.Extension.Tag = body[0]
				d.Extension.Unknown = append([]byte(nil), body[1:]...)
			}
		}
		ret = append(ret, d)
		b = b[2+int(d.Length):]
	}
	return
}
