// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsparser

import (
	"bytes"

	ts "github.com/asticode/go-astits"
	"github.com/q191201771/tsextractor/pkg/aac"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/h2645"
	"github.com/q191201771/tsextractor/pkg/mpegts"
	"github.com/q191201771/tsextractor/pkg/trackqueue"
)

var mpeg2SequenceHeader = []byte{0x00, 0x00, 0x01, 0xB3}

// stream 一个基本流的PES组装以及AccessUnit切分
type stream struct {
	parser     *Parser
	program    *program
	pid        uint16
	streamType uint8
	kind       base.MediaKind
	mime       string

	// 第一个可用的AccessUnit到来之前为nil
	queue *trackqueue.Queue

	// format为nil时，等到下一个同步帧重新建立
	format      *base.Format
	formatDirty bool
	scrambled   bool

	expectedCc     int
	payloadStarted bool
	damaged        bool
	randomAccess   bool
	pesStartOffset int64
	buf            []byte

	// 不足一个完整ADTS帧的数据，和下一个PES拼接
	adtsPending     []byte
	nextAudioTimeUs int64
}

func newStream(parser *Parser, prog *program, pid uint16, streamType uint8, kind base.MediaKind, mime string) *stream {
	return &stream{
		parser:          parser,
		program:         prog,
		pid:             pid,
		streamType:      streamType,
		kind:            kind,
		mime:            mime,
		expectedCc:      -1,
		pesStartOffset:  -1,
		nextAudioTimeUs: base.NoTimestamp,
	}
}

func (s *stream) feedPacket(pkt *ts.Packet, event *SyncEvent) {
	h := pkt.Header
	if h.TransportScramblingControl != 0 && !s.scrambled {
		Log.Infof("[%s] stream is scrambled. pid=%d", s.parser.uniqueKey, s.pid)
		s.scrambled = true
	}

	if !h.HasPayload {
		return
	}

	discontinuityIndicated := pkt.AdaptationField != nil && pkt.AdaptationField.DiscontinuityIndicator
	cc := int(h.ContinuityCounter)
	if s.expectedCc >= 0 && !discontinuityIndicated {
		if cc == (s.expectedCc+15)&0x0F {
			// 重复包
			return
		}
		if cc != s.expectedCc {
			Log.Warnf("[%s] continuity counter not match. pid=%d, expected=%d, got=%d",
				s.parser.uniqueKey, s.pid, s.expectedCc, cc)
			s.parser.stat.CcErrorCount++
			s.damaged = true
		}
	}
	s.expectedCc = (cc + 1) & 0x0F

	if h.PayloadUnitStartIndicator {
		if s.payloadStarted {
			s.flush(event)
		}
		s.payloadStarted = true
		s.damaged = false
		s.randomAccess = pkt.AdaptationField != nil && pkt.AdaptationField.RandomAccessIndicator
		s.pesStartOffset = -1
		if event != nil {
			s.pesStartOffset = event.InitOffset()
		}
	}
	if !s.payloadStarted {
		return
	}
	if h.TransportErrorIndicator {
		s.damaged = true
	}

	s.buf = append(s.buf, pkt.Payload...)

	// PES_packet_length不为0时，收齐就可以解析，不用等下一个PES的开始
	if len(s.buf) >= 6 {
		ppl := int(s.buf[4])<<8 | int(s.buf[5])
		if ppl != 0 && len(s.buf) >= ppl+6 {
			s.flush(event)
			s.payloadStarted = false
		}
	}
}

func (s *stream) signalDiscontinuity(typ base.DiscontinuityType, extra *base.DiscontinuityExtra) {
	s.expectedCc = -1
	s.resetPes()

	if typ.IsFormatChangeFor(s.kind) {
		s.format = nil
	}

	if s.queue != nil {
		s.queue.PushDiscontinuity(typ, extra, true)
	}
}

func (s *stream) signalEndOfStream(result error) {
	if s.payloadStarted {
		s.flush(nil)
	}
	s.resetPes()
	if s.queue != nil {
		s.queue.SignalEndOfStream(result)
	}
}

func (s *stream) reset() {
	s.expectedCc = -1
	s.resetPes()
	if s.queue != nil {
		s.queue.PushDiscontinuity(base.DiscontinuityNone, nil, true)
	}
}

// changeType PMT更新后同一个pid的流类型发生了变化
func (s *stream) changeType(streamType uint8, kind base.MediaKind, mime string) {
	Log.Infof("[%s] stream type changed. pid=%d, type=%d->%d, mime=%s->%s",
		s.parser.uniqueKey, s.pid, s.streamType, streamType, s.mime, mime)

	s.streamType = streamType
	s.mime = mime
	s.format = nil
	s.resetPes()
	if s.queue == nil {
		s.kind = kind
		return
	}
	if kind != s.kind {
		Log.Warnf("[%s] stream kind changed, ignore. pid=%d", s.parser.uniqueKey, s.pid)
		return
	}
	s.queue.PushDiscontinuity(base.DiscontinuityFormatChange, nil, false)
}

func (s *stream) resetPes() {
	s.payloadStarted = false
	s.damaged = false
	s.randomAccess = false
	s.pesStartOffset = -1
	s.buf = nil
	s.adtsPending = nil
	s.nextAudioTimeUs = base.NoTimestamp
}

func (s *stream) flush(event *SyncEvent) {
	buf := s.buf
	damaged := s.damaged
	offset := s.pesStartOffset
	s.buf = nil
	s.damaged = false

	if len(buf) == 0 {
		return
	}
	s.parser.stat.PesCount++

	pes, headerLength, err := mpegts.ParsePes(buf)
	if err != nil {
		Log.Warnf("[%s] parse pes failed, drop it. pid=%d, len=%d, err=%+v", s.parser.uniqueKey, s.pid, len(buf), err)
		if s.parser.logDump.ShouldDump() {
			s.parser.logDump.OutHex(s.parser.uniqueKey, "pes", buf, 64)
		}
		s.parser.stat.DropPesCount++
		return
	}
	if ppl := int(pes.PacketLength()); ppl != 0 {
		if len(buf) > ppl+6 {
			buf = buf[:ppl+6]
		} else if len(buf) < ppl+6 {
			Log.Warnf("[%s] pes truncated. pid=%d, expected=%d, got=%d", s.parser.uniqueKey, s.pid, ppl+6, len(buf))
			damaged = true
		}
	}
	if pes.PesScramblingControl() != 0 && !s.scrambled {
		Log.Infof("[%s] stream is scrambled at pes level. pid=%d", s.parser.uniqueKey, s.pid)
		s.scrambled = true
	}

	timeUs := base.NoTimestamp
	if pes.HasPts() {
		timeUs = s.parser.convertPtsToTimeUs(s.program, pes.Pts())
	}

	es := buf[headerLength:]
	found := false
	if s.mime == base.MimeAudioAac && !s.scrambled {
		s.onAdtsPayload(es, timeUs, damaged, offset, event, &found)
		return
	}

	au := &base.AccessUnit{
		Payload: es,
		TimeUs:  timeUs,
		IsSync:  s.isSync(es),
		Damaged: damaged,
	}
	s.emit(au, nil, offset, event, &found)
}

func (s *stream) isSync(es []byte) bool {
	if s.kind == base.MediaKindAudio {
		return true
	}
	if s.scrambled {
		return s.randomAccess
	}
	switch s.mime {
	case base.MimeVideoAvc:
		return h2645.IsKeyFrameAnnexb(true, es)
	case base.MimeVideoHevc:
		return h2645.IsKeyFrameAnnexb(false, es)
	case base.MimeVideoMpeg2:
		return s.randomAccess || bytes.Contains(es, mpeg2SequenceHeader)
	}
	return s.randomAccess
}

func (s *stream) onAdtsPayload(es []byte, timeUs int64, damaged bool, offset int64, event *SyncEvent, found *bool) {
	// 上一个PES遗留的数据属于之前的时间戳
	boundary := len(s.adtsPending)
	data := es
	if boundary > 0 {
		data = append(s.adtsPending, es...)
	} else if timeUs != base.NoTimestamp {
		s.nextAudioTimeUs = timeUs
	}
	s.adtsPending = nil

	pos := 0
	remain, err := aac.IterateAdtsFrames(data, func(ctx *aac.AdtsHeaderContext, raw []byte) {
		frameStart := pos
		pos += int(ctx.AdtsLength)

		if frameStart >= boundary && boundary > 0 && timeUs != base.NoTimestamp {
			s.nextAudioTimeUs = timeUs
			boundary = 0
		}

		au := &base.AccessUnit{
			Payload: raw,
			TimeUs:  s.nextAudioTimeUs,
			IsSync:  true,
			Damaged: damaged,
		}
		s.emit(au, ctx, offset, event, found)

		if s.nextAudioTimeUs != base.NoTimestamp {
			if d, err := ctx.AscCtx.FrameDurationUs(); err == nil {
				s.nextAudioTimeUs += d
			}
		}
	})
	if err != nil {
		Log.Warnf("[%s] iterate adts frames failed. pid=%d, remain=%d, err=%+v", s.parser.uniqueKey, s.pid, remain, err)
		s.parser.stat.DropPesCount++
		return
	}
	if remain > 0 && !damaged {
		s.adtsPending = append([]byte(nil), data[len(data)-remain:]...)
	}
}

// emit 一个AccessUnit送入track队列
//
// 队列在第一个同步帧到来时创建。格式被清空后，同步帧到来之前的数据丢弃
func (s *stream) emit(au *base.AccessUnit, adtsCtx *aac.AdtsHeaderContext, offset int64, event *SyncEvent, found *bool) {
	if au.Damaged {
		if s.queue != nil {
			s.queue.Push(au)
		}
		return
	}

	if s.format == nil {
		if !au.IsSync {
			return
		}
		s.format = s.makeFormat(au.Payload, adtsCtx)
		s.formatDirty = true
	}

	if s.queue == nil {
		s.queue = trackqueue.New(s.kind, s.format)
		Log.Infof("[%s] stream now has data. pid=%d, mime=%s, scrambled=%t, queue=%s",
			s.parser.uniqueKey, s.pid, s.mime, s.format.Scrambled, s.queue.UniqueKey())
	} else if s.formatDirty {
		au.Format = s.format
		if s.queue.Format() == nil {
			s.queue.SetFormat(s.format)
		}
	}
	s.formatDirty = false

	s.queue.Push(au)
	s.parser.stat.AccessUnitCount++

	if event != nil && !*found && offset >= 0 && au.IsSync && au.HasTime() {
		*found = true
		event.init(offset, s.queue, au.TimeUs)
	}
}

func (s *stream) makeFormat(payload []byte, adtsCtx *aac.AdtsHeaderContext) *base.Format {
	f := &base.Format{
		Mime:       s.mime,
		Kind:       s.kind,
		StreamType: s.streamType,
		Pid:        s.pid,
		Scrambled:  s.scrambled,
	}
	if s.scrambled {
		return f
	}

	switch s.mime {
	case base.MimeVideoAvc:
		f.CodecConfig = h2645.ExtractCodecConfigAnnexb(true, payload)
	case base.MimeVideoHevc:
		f.CodecConfig = h2645.ExtractCodecConfigAnnexb(false, payload)
	case base.MimeAudioAac:
		if adtsCtx != nil {
			f.CodecConfig = adtsCtx.AscCtx.Pack()
			f.SampleRate, _ = adtsCtx.AscCtx.GetSamplingFrequency()
			f.ChannelCount = int(adtsCtx.AscCtx.ChannelConfiguration)
		}
	}
	return f
}
