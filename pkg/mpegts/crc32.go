// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// CRC-32/MPEG-2，多项式0x04C11DB7，不做反转，结果不异或
// <iso13818-1.pdf> <Annex A>

var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04C11DB7
			} else {
				c <<= 1
			}
		}
		crc32Table[i] = c
	}
}

func CalcCrc32(crc uint32, buffer []byte) uint32 {
	for _, b := range buffer {
		crc = crc<<8 ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// VerifyCrc32 b为包含末尾4字节CRC_32的完整section
func VerifyCrc32(b []byte) bool {
	return CalcCrc32(0xffffffff, b) == 0
}
