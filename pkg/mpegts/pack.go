// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

const tsPacketSize = 188

// Frame 一帧音频或视频数据， Pack 将其切分为多个transport packet
type Frame struct {
	Pts uint64 // 单位90KHz
	Dts uint64

	// Cc 上一个packet的continuity_counter， Pack 每生成一个packet递增一次
	Cc uint8

	Pid uint16
	Sid uint8 // PES Header中的stream_id

	// Key 为true时，首个packet携带random_access_indicator以及PCR
	Key bool

	// Scrambled 为true时设置transport_scrambling_control，只用于构造测试流
	Scrambled bool

	// Raw 音频为ADTS，视频为Annexb
	Raw []byte
}

// Pack 返回的内存块为独立申请，内部不再持有
func (frame *Frame) Pack() []byte {
	out := make([]byte, 0, (len(frame.Raw)/(tsPacketSize-4)+2)*tsPacketSize)

	remain := frame.Raw
	for first := true; len(remain) > 0; first = false {
		var packet [tsPacketSize]byte
		frame.Cc++

		wpos := frame.writeTsHeader(packet[:], first)
		if first {
			if frame.Key {
				wpos = frame.writeRandomAccessAdaptation(packet[:], wpos)
			}
			wpos = frame.writePesHeader(packet[:], wpos)
		}

		n := tsPacketSize - wpos
		if n > len(remain) {
			// 最后一个packet写不满，数据放在尾部，空闲部分通过adaptation填充0xFF
			stuffSize := n - len(remain)
			stuffAdaptation(packet[:], wpos, stuffSize)
			wpos += stuffSize
			n = len(remain)
		}
		copy(packet[wpos:], remain[:n])
		remain = remain[n:]

		out = append(out, packet[:]...)
	}
	return out
}

// ----- private -------------------------------------------------------------------------------------------------------

// writeTsHeader adaptation_field_control先设置为只有payload
func (frame *Frame) writeTsHeader(packet []byte, payloadUnitStart bool) int {
	packet[0] = syncByte
	packet[1] = uint8((frame.Pid >> 8) & 0x1F)
	if payloadUnitStart {
		packet[1] |= 0x40
	}
	packet[2] = uint8(frame.Pid & 0xFF)
	packet[3] = 0x10 | (frame.Cc & 0x0F)
	if frame.Scrambled {
		packet[3] |= 0x80 // even key
	}
	return 4
}

// writeRandomAccessAdaptation adaptation_field_length(1) | flags(1) | PCR(6)
func (frame *Frame) writeRandomAccessAdaptation(packet []byte, wpos int) int {
	packet[3] |= 0x20
	packet[wpos] = 7
	packet[wpos+1] = 0x50 // random_access_indicator | PCR_flag
	packPcr(packet[wpos+2:], frame.Dts)
	return wpos + 8
}

// writePesHeader 只写PTS，以及与PTS不同时的DTS，其他可选字段都为0
func (frame *Frame) writePesHeader(packet []byte, wpos int) int {
	headerDataLength := uint8(5)
	flags := uint8(0x80)
	if frame.Dts != frame.Pts {
		headerDataLength += 5
		flags |= 0x40
	}

	// 超过16位时，PES_packet_length填0，视频允许这种情况
	pesLength := len(frame.Raw) + 3 + int(headerDataLength)
	if pesLength > 0xFFFF {
		pesLength = 0
	}

	b := packet[wpos:]
	b[0], b[1], b[2] = 0x00, 0x00, 0x01
	b[3] = frame.Sid
	b[4] = uint8(pesLength >> 8)
	b[5] = uint8(pesLength)
	b[6] = 0x80 // '10'
	b[7] = flags
	b[8] = headerDataLength
	packPts(b[9:], flags>>6, frame.Pts+delay)
	if flags&0x40 != 0 {
		packPts(b[14:], 1, frame.Dts+delay)
	}
	return wpos + 9 + int(headerDataLength)
}

// stuffAdaptation 在adaptation尾部插入stuffSize个0xFF，packet[4:wpos]中adaptation之后的内容整体后移
func stuffAdaptation(packet []byte, wpos int, stuffSize int) {
	if packet[3]&0x20 != 0 {
		pos := 5 + int(packet[4])
		if wpos > pos {
			copy(packet[pos+stuffSize:], packet[pos:wpos])
		}
		packet[4] += uint8(stuffSize)
		for i := 0; i < stuffSize; i++ {
			packet[pos+i] = 0xFF
		}
		return
	}

	packet[3] |= 0x20
	if wpos > 4 {
		copy(packet[4+stuffSize:], packet[4:wpos])
	}
	// 只填充1个字节时，只有adaptation_field_length，其值为0
	packet[4] = uint8(stuffSize - 1)
	if stuffSize >= 2 {
		packet[5] = 0
		for i := 0; i < stuffSize-2; i++ {
			packet[6+i] = 0xFF
		}
	}
}

func packPcr(out []byte, pcr uint64) {
	out[0] = uint8(pcr >> 25)
	out[1] = uint8(pcr >> 17)
	out[2] = uint8(pcr >> 9)
	out[3] = uint8(pcr >> 1)
	out[4] = uint8(pcr<<7) | 0x7e
	out[5] = 0
}

// packPts DTS也使用这个函数打包，fb为PTS时是2或3，为DTS时是1
func packPts(out []byte, fb uint8, pts uint64) {
	out[0] = (fb << 4) | (uint8(pts>>30) & 0x07) | 1

	val := (((pts >> 15) & 0x7FFF) << 1) | 1
	out[1] = uint8(val >> 8)
	out[2] = uint8(val)

	val = ((pts & 0x7FFF) << 1) | 1
	out[3] = uint8(val >> 8)
	out[4] = uint8(val)
}
