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

// ---------------------------------------------------------------------------------------------------
// Program association section
// <iso13818-1.pdf> <2.4.4.3> <page 61/174>
// table_id                 [8b] *
// section_syntax_indicator [1b]
// '0'                      [1b]
// reserved                 [2b]
// section_length           [12b] **
// transport_stream_id      [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// -----loop-----
// program_number           [16b] **
// reserved                 [3b]
// program_map_PID          [13b] ** if program_number == 0 then network_PID else then program_map_PID
// --------------
// CRC_32                   [32b] ****
// ---------------------------------------------------------------------------------------------------
type Pat struct {
	tid   uint8
	ssi   uint8
	sl    uint16
	tsi   uint16
	vn    uint8
	cni   uint8
	sn    uint8
	lsn   uint8
	ppes  []PatProgramElement
	crc32 uint32
}

type PatProgramElement struct {
	pn    uint16
	pmpid uint16
}

// ParsePat
//
// @param b: 从table_id开始，也即调用方需要先跳过pointer_field
func ParsePat(b []byte) (pat Pat, err error) {
	if len(b) < 8 {
		return pat, base.ErrShortBuffer
	}
	br := nazabits.NewBitReader(b)
	pat.tid, _ = br.ReadBits8(8)
	pat.ssi, _ = br.ReadBits8(1)
	_, _ = br.ReadBits8(3)
	pat.sl, _ = br.ReadBits16(12)
	if pat.tid != TsPsiIdPas {
		return pat, base.NewErrTsMalformed("unexpected pat table id. tid=%d", pat.tid)
	}
	if pat.sl < 9 || len(b) < 3+int(pat.sl) {
		return pat, base.NewErrTsMalformed("invalid pat section length. sl=%d, buf=%d", pat.sl, len(b))
	}
	if !VerifyCrc32(b[:3+pat.sl]) {
		return pat, base.NewErrTsMalformed("pat crc32 mismatch")
	}
	pat.tsi, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(2)
	pat.vn, _ = br.ReadBits8(5)
	pat.cni, _ = br.ReadBits8(1)
	pat.sn, _ = br.ReadBits8(8)
	pat.lsn, _ = br.ReadBits8(8)

	length := pat.sl - 9

	for i := uint16(0); i+4 <= length; i += 4 {
		var ppe PatProgramElement
		ppe.pn, _ = br.ReadBits16(16)
		_, _ = br.ReadBits8(3)
		ppe.pmpid, _ = br.ReadBits16(13)
		pat.ppes = append(pat.ppes, ppe)
	}
	pat.crc32, _ = br.ReadBits32(32)
	return
}

func (pat *Pat) SearchPid(pid uint16) bool {
	for _, ppe := range pat.ppes {
		if ppe.pn != 0 && pid == ppe.pmpid {
			return true
		}
	}
	return false
}

// PmtPids 所有program的PMT PID，不包含network PID
func (pat *Pat) PmtPids() (ret []uint16) {
	for _, ppe := range pat.ppes {
		if ppe.pn != 0 {
			ret = append(ret, ppe.pmpid)
		}
	}
	return
}

func (pat *Pat) Version() uint8 {
	return pat.vn
}

func NewPatProgramElement(programNumber uint16, pmtPid uint16) PatProgramElement {
	return PatProgramElement{pn: programNumber, pmpid: pmtPid}
}
