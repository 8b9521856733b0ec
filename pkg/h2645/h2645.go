// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package h2645 h264和h265 Annexb格式ES流的辅助函数
package h2645

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/tsextractor/pkg/base"
)

// 无特殊说明的函数则同时支持h264和h265两种格式

var (
	NaluStartCode3 = []byte{0x0, 0x0, 0x1}
	NaluStartCode4 = []byte{0x0, 0x0, 0x0, 0x1}
)

const (
	H264NaluTypeSlice    uint8 = 1
	H264NaluTypeIdrSlice uint8 = 5
	H264NaluTypeSei      uint8 = 6
	H264NaluTypeSps      uint8 = 7
	H264NaluTypePps      uint8 = 8
	H264NaluTypeAud      uint8 = 9  // Access Unit Delimiter
	H264NaluTypeFd       uint8 = 12 // Filler Data
)

// ISO_IEC_23008-2_2013.pdf
// Table 7-1 – NAL unit type codes and NAL unit type classes
const (
	H265NaluTypeSliceTrailN uint8 = 0 // 0x0
	H265NaluTypeSliceTrailR uint8 = 1 // 0x01
	H265NaluTypeSliceTsaN   uint8 = 2 // 0x02
	H265NaluTypeSliceTsaR   uint8 = 3 // 0x03
	H265NaluTypeSliceStsaN  uint8 = 4 // 0x04
	H265NaluTypeSliceStsaR  uint8 = 5 // 0x05
	H265NaluTypeSliceRadlN  uint8 = 6 // 0x06
	H265NaluTypeSliceRadlR  uint8 = 7 // 0x07
	H265NaluTypeSliceRaslN  uint8 = 8 // 0x06
	H265NaluTypeSliceRaslR  uint8 = 9 // 0x09

	H265NaluTypeSliceBlaWlp       uint8 = 16 // 0x10
	H265NaluTypeSliceBlaWradl     uint8 = 17 // 0x11
	H265NaluTypeSliceBlaNlp       uint8 = 18 // 0x12
	H265NaluTypeSliceIdr          uint8 = 19 // 0x13
	H265NaluTypeSliceIdrNlp       uint8 = 20 // 0x14
	H265NaluTypeSliceCranut       uint8 = 21 // 0x15
	H265NaluTypeSliceRsvIrapVcl22 uint8 = 22 // 0x16
	H265NaluTypeSliceRsvIrapVcl23 uint8 = 23 // 0x17

	H265NaluTypeVps       uint8 = 32 // 0x20
	H265NaluTypeSps       uint8 = 33 // 0x21
	H265NaluTypePps       uint8 = 34 // 0x22
	H265NaluTypeAud       uint8 = 35 // 0x23
	H265NaluTypeSei       uint8 = 39 // 0x27
	H265NaluTypeSeiSuffix uint8 = 40 // 0x28
)

// IterateNaluStartCode 从start位置开始查找下一个start code
//
// @return pos: start code之后的第一个字节的位置，没找到时为-1
// @return length: start code的长度，3或4
func IterateNaluStartCode(nalu []byte, start int) (pos, length int) {
	if start < 0 {
		start = 0
	}
	for i := start; i+3 <= len(nalu); i++ {
		if nalu[i] != 0 || nalu[i+1] != 0 {
			continue
		}
		if nalu[i+2] == 1 {
			if i > start && nalu[i-1] == 0 {
				return i + 3, 4
			}
			return i + 3, 3
		}
	}
	return -1, 0
}

// IterateNaluAnnexb 遍历Annexb格式的nalu流，回调的nal不包含start code
func IterateNaluAnnexb(nals []byte, handler func(nal []byte)) error {
	pos, _ := IterateNaluStartCode(nals, 0)
	if pos == -1 {
		return base.ErrH2645
	}
	for pos < len(nals) {
		next, length := IterateNaluStartCode(nals, pos)
		if next == -1 {
			handler(nals[pos:])
			return nil
		}
		end := next - length
		if end > pos {
			handler(nals[pos:end])
		}
		pos = next
	}
	return nil
}

func ParseNaluType(isH264 bool, v uint8) uint8 {
	if isH264 {
		return v & 0x1f
	}
	// 6 bit in middle
	// 0*** ***0
	return (v & 0x7E) >> 1
}

func H265IsIrapNalu(typ uint8) bool {
	// [16, 23] irap nal
	// [19, 20] idr nal
	return typ >= H265NaluTypeSliceBlaWlp && typ <= H265NaluTypeSliceRsvIrapVcl23
}

// IsKeyFrameAnnexb h264包含IDR slice，或者h265包含IRAP slice
func IsKeyFrameAnnexb(isH264 bool, nals []byte) bool {
	key := false
	_ = IterateNaluAnnexb(nals, func(nal []byte) {
		if key || len(nal) == 0 {
			return
		}
		t := ParseNaluType(isH264, nal[0])
		if isH264 {
			key = t == H264NaluTypeIdrSlice
		} else {
			key = H265IsIrapNalu(t)
		}
	})
	return key
}

// ExtractCodecConfigAnnexb 提取Annexb流中的VPS、SPS、PPS，按原顺序拼接成Annexb格式返回。没有时返回nil
func ExtractCodecConfigAnnexb(isH264 bool, nals []byte) (ret []byte) {
	_ = IterateNaluAnnexb(nals, func(nal []byte) {
		if len(nal) == 0 {
			return
		}
		t := ParseNaluType(isH264, nal[0])
		isConfig := false
		if isH264 {
			isConfig = t == H264NaluTypeSps || t == H264NaluTypePps
		} else {
			isConfig = t == H265NaluTypeVps || t == H265NaluTypeSps || t == H265NaluTypePps
		}
		if isConfig {
			ret = append(ret, NaluStartCode4...)
			ret = append(ret, nal...)
		}
	})
	return
}

func JoinNaluAvcc(naluList ...[]byte) []byte {
	n := len(naluList)
	if n == 0 {
		return nil
	}
	n *= 4
	for _, item := range naluList {
		n += len(item)
	}
	ret := make([]byte, n)

	pos := 0
	for _, item := range naluList {
		bele.BePutUint32(ret[pos:], uint32(len(item)))
		pos += 4
		copy(ret[pos:], item)
		pos += len(item)
	}

	return ret
}

// JoinNaluAnnexb 每个nalu前面加4字节start code
func JoinNaluAnnexb(naluList ...[]byte) []byte {
	var ret []byte
	for _, item := range naluList {
		ret = append(ret, NaluStartCode4...)
		ret = append(ret, item...)
	}
	return ret
}
