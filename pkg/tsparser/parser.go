// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package tsparser 逐个packet解析transport stream，将解出的AccessUnit送入每个基本流的track队列
//
// 非并发安全，由上层（extractor）的会话锁保护。track队列本身是并发安全的
package tsparser

import (
	"context"
	"encoding/hex"
	"errors"
	"io"

	ts "github.com/asticode/go-astits"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/mpegts"
	"github.com/q191201771/tsextractor/pkg/trackqueue"
)

type Option struct {
	// DebugDumpMaxNum 日志级别为debug时，异常数据hex dump的最多打印次数
	DebugDumpMaxNum int

	// AbsoluteTimestamps 为true时时间戳直接由PTS换算，不减去节目的第一个PTS
	AbsoluteTimestamps bool
}

var defaultOption = Option{
	DebugDumpMaxNum:    8,
	AbsoluteTimestamps: false,
}

type ModOption func(option *Option)

type Stat struct {
	PacketCount     uint64
	PesCount        uint64
	AccessUnitCount uint64
	CcErrorCount    uint64
	DropPesCount    uint64
}

type Parser struct {
	uniqueKey string
	option    Option

	slot    *packetSlot
	demuxer *ts.Demuxer

	pmtPids     map[uint16]struct{}
	sections    map[uint16][]byte
	programs    map[uint16]*program
	streams     map[uint16]*stream
	streamOrder []*stream

	// 由discontinuity带入的时间基准
	hasAnchor     bool
	anchorUs      int64
	hasTimeOffset bool
	timeOffsetUs  int64

	stat    Stat
	logDump base.LogDump
}

type program struct {
	number uint16

	firstPtsValid    bool
	firstPts         int64
	lastRecoveredPts int64
}

func New(modOptions ...ModOption) *Parser {
	option := defaultOption
	for _, fn := range modOptions {
		fn(&option)
	}

	slot := &packetSlot{}
	p := &Parser{
		uniqueKey: base.GenUkTsParser(),
		option:    option,
		slot:      slot,
		demuxer:   ts.NewDemuxer(context.Background(), slot, ts.DemuxerOptPacketSize(base.TsPacketSize)),
		pmtPids:   make(map[uint16]struct{}),
		sections:  make(map[uint16][]byte),
		programs:  make(map[uint16]*program),
		streams:   make(map[uint16]*stream),
		logDump:   base.NewLogDump(Log, option.DebugDumpMaxNum),
	}
	Log.Debugf("[%s] lifecycle new ts parser. option=%+v", p.uniqueKey, option)
	return p
}

func (p *Parser) UniqueKey() string {
	return p.uniqueKey
}

// FeedPacket 喂入一个完整的transport packet
//
// @param packet: 长度为 base.TsPacketSize 。函数调用结束后，内部不持有该内存块
//
// @param event:  可以为nil。如果本次喂入导致某个同步帧进入了track队列，则通过event带回
//
// @return 首字节不是0x47时返回 base.ErrTsSyncByte ，packet结构非法时返回 base.ErrTsMalformed 。
//
//	PSI、PES层面的错误只打日志，不返回
func (p *Parser) FeedPacket(packet []byte, event *SyncEvent) error {
	if len(packet) != base.TsPacketSize {
		return base.NewErrTsMalformed("invalid packet size. size=%d", len(packet))
	}
	if packet[0] != base.SyncByte {
		return base.ErrTsSyncByte
	}
	afc := (packet[3] >> 4) & 0x3
	if afc&0x2 != 0 && packet[4] > 183 {
		return base.NewErrTsMalformed("invalid adaptation field length. length=%d", packet[4])
	}

	p.slot.b = packet
	pkt, err := p.demuxer.NextPacket()
	p.slot.b = nil
	if err != nil {
		if p.logDump.ShouldDump() {
			p.logDump.Outf("[%s] parse packet failed. err=%+v, packet=%s", p.uniqueKey, err, hex.Dump(nazabytes.Prefix(packet, 32)))
		}
		if errors.Is(err, ts.ErrNoMorePackets) {
			return base.NewErrTsMalformed("no packet parsed")
		}
		return base.NewErrTsMalformed("%+v", err)
	}
	p.stat.PacketCount++

	pid := pkt.Header.PID
	switch {
	case pid == mpegts.PidPat:
		p.feedSection(pid, pkt)
	case p.isPmtPid(pid):
		p.feedSection(pid, pkt)
	default:
		if s, ok := p.streams[pid]; ok {
			s.feedPacket(pkt, event)
		}
	}
	return nil
}

// Source 返回第一个该类型、并且已经有数据的track队列，没有时返回nil
func (p *Parser) Source(kind base.MediaKind) *trackqueue.Queue {
	for _, s := range p.streamOrder {
		if s.kind == kind && s.queue != nil {
			return s.queue
		}
	}
	return nil
}

// Sources 所有已经有数据的track队列，按PMT中出现的顺序
func (p *Parser) Sources() (ret []*trackqueue.Queue) {
	for _, s := range p.streamOrder {
		if s.queue != nil {
			ret = append(ret, s.queue)
		}
	}
	return
}

// SignalDiscontinuity 数据源发生了跳变，比如seek
//
// 所有基本流丢弃组装中的PES，并向track队列插入discontinuity标记（丢弃队列中已有的数据）。
// typ包含 base.DiscontinuityTime 且extra中有时间时，之后的时间戳以该时间为基准重新计算
func (p *Parser) SignalDiscontinuity(typ base.DiscontinuityType, extra *base.DiscontinuityExtra) {
	Log.Debugf("[%s] signal discontinuity. type=%d, extra=%+v", p.uniqueKey, typ, extra)

	hasTime := extra != nil && extra.MediaTimeUs != base.NoTimestamp
	if typ&base.DiscontinuityTime != 0 && hasTime {
		p.hasAnchor = true
		p.anchorUs = extra.MediaTimeUs
		for _, prog := range p.programs {
			prog.firstPtsValid = false
		}
	} else if typ == base.DiscontinuityAbsoluteTime && hasTime {
		p.hasAnchor = true
		p.anchorUs = extra.MediaTimeUs
	} else if typ == base.DiscontinuityTimeOffset && hasTime {
		p.hasTimeOffset = true
		p.timeOffsetUs = extra.MediaTimeUs
	}

	for _, s := range p.streamOrder {
		s.signalDiscontinuity(typ, extra)
	}
}

// SignalEndOfStream 组装中的PES作为最后一个PES解析，然后终止所有track队列
//
// @param result: 不能为nil，正常结束时使用 base.ErrEndOfStream
func (p *Parser) SignalEndOfStream(result error) {
	Log.Debugf("[%s] signal end of stream. result=%+v", p.uniqueKey, result)
	for _, s := range p.streamOrder {
		s.signalEndOfStream(result)
	}
}

// Reset 回到刚解析完PSI的状态：丢弃所有组装中的数据以及track队列中的数据，清除时间基准
//
// 已经发现的基本流以及track队列（包括格式）保留
func (p *Parser) Reset() {
	Log.Debugf("[%s] reset.", p.uniqueKey)
	p.sections = make(map[uint16][]byte)
	p.hasAnchor = false
	p.hasTimeOffset = false
	for _, prog := range p.programs {
		prog.firstPtsValid = false
		prog.lastRecoveredPts = -1
	}
	for _, s := range p.streamOrder {
		s.reset()
	}
}

// SourceCount 已经有数据的track队列的个数
func (p *Parser) SourceCount() int {
	n := 0
	for _, s := range p.streamOrder {
		if s.queue != nil {
			n++
		}
	}
	return n
}

func (p *Parser) Stat() Stat {
	return p.stat
}

// ----- private -------------------------------------------------------------------------------------------------------

func (p *Parser) isPmtPid(pid uint16) bool {
	_, ok := p.pmtPids[pid]
	return ok
}

func (p *Parser) feedSection(pid uint16, pkt *ts.Packet) {
	payload := pkt.Payload
	if !pkt.Header.HasPayload || len(payload) == 0 {
		return
	}

	if pkt.Header.PayloadUnitStartIndicator {
		pointer := int(payload[0])
		if 1+pointer > len(payload) {
			Log.Warnf("[%s] invalid pointer field. pid=%d, pointer=%d", p.uniqueKey, pid, pointer)
			delete(p.sections, pid)
			return
		}
		// pointer_field之前的数据是上一个section的尾部
		if prev, ok := p.sections[pid]; ok && pointer > 0 {
			p.sections[pid] = append(prev, payload[1:1+pointer]...)
			p.tryCompleteSection(pid)
		}
		p.sections[pid] = append([]byte(nil), payload[1+pointer:]...)
	} else {
		prev, ok := p.sections[pid]
		if !ok {
			return
		}
		p.sections[pid] = append(prev, payload...)
	}
	p.tryCompleteSection(pid)
}

func (p *Parser) tryCompleteSection(pid uint16) {
	b := p.sections[pid]
	if len(b) < 3 {
		return
	}
	if b[0] == 0xFF {
		delete(p.sections, pid)
		return
	}
	sl := int(b[1]&0x0F)<<8 | int(b[2])
	if len(b) < 3+sl {
		return
	}
	delete(p.sections, pid)

	section := b[:3+sl]
	if pid == mpegts.PidPat {
		p.onPat(section)
	} else {
		p.onPmt(pid, section)
	}
}

func (p *Parser) onPat(section []byte) {
	pat, err := mpegts.ParsePat(section)
	if err != nil {
		Log.Warnf("[%s] parse pat failed. err=%+v", p.uniqueKey, err)
		if p.logDump.ShouldDump() {
			p.logDump.OutHex(p.uniqueKey, "pat", section, 64)
		}
		return
	}
	for _, pid := range pat.PmtPids() {
		if p.isPmtPid(pid) {
			continue
		}
		Log.Debugf("[%s] add pmt pid. pid=%d", p.uniqueKey, pid)
		p.pmtPids[pid] = struct{}{}
	}
}

func (p *Parser) onPmt(pid uint16, section []byte) {
	pmt, err := mpegts.ParsePmt(section)
	if err != nil {
		Log.Warnf("[%s] parse pmt failed. pid=%d, err=%+v", p.uniqueKey, pid, err)
		if p.logDump.ShouldDump() {
			p.logDump.OutHex(p.uniqueKey, "pmt", section, 64)
		}
		return
	}

	prog, ok := p.programs[pmt.ProgramNumber()]
	if !ok {
		prog = &program{
			number:           pmt.ProgramNumber(),
			lastRecoveredPts: -1,
		}
		p.programs[prog.number] = prog
	}

	for i := range pmt.ProgramElements {
		e := &pmt.ProgramElements[i]
		kind, mime, ok := classifyElement(e)
		if !ok {
			Log.Debugf("[%s] ignore elementary stream. pid=%d, stream type=%d", p.uniqueKey, e.Pid, e.StreamType)
			continue
		}

		if s, exist := p.streams[e.Pid]; exist {
			if s.streamType != e.StreamType {
				s.changeType(e.StreamType, kind, mime)
			}
			continue
		}

		s := newStream(p, prog, e.Pid, e.StreamType, kind, mime)
		p.streams[e.Pid] = s
		p.streamOrder = append(p.streamOrder, s)
		Log.Infof("[%s] add elementary stream. program=%d, pid=%d, stream type=%d, mime=%s",
			p.uniqueKey, prog.number, e.Pid, e.StreamType, mime)
	}
}

// convertPtsToTimeUs 33位PTS扩展成连续的值，再换算成微秒
func (p *Parser) convertPtsToTimeUs(prog *program, pts uint64) int64 {
	v := prog.recoverPts(pts)
	if !p.option.AbsoluteTimestamps {
		if !prog.firstPtsValid {
			prog.firstPtsValid = true
			prog.firstPts = v
			v = 0
		} else if v < prog.firstPts {
			v = 0
		} else {
			v -= prog.firstPts
		}
	}

	timeUs := v * 100 / 9
	if p.hasAnchor {
		timeUs += p.anchorUs
	}
	if p.hasTimeOffset {
		timeUs += p.timeOffsetUs
	}
	return timeUs
}

// recoverPts 选择与上一个值最接近的回绕周期
func (prog *program) recoverPts(pts33 uint64) int64 {
	if prog.lastRecoveredPts < 0 {
		prog.lastRecoveredPts = int64(pts33)
		return prog.lastRecoveredPts
	}
	v := int64(((uint64(prog.lastRecoveredPts) - pts33 + 0x100000000) & 0xFFFFFFFE00000000) | pts33)
	if v < 0 {
		v = int64(pts33)
	}
	prog.lastRecoveredPts = v
	return v
}

func classifyElement(e *mpegts.PmtProgramElement) (kind base.MediaKind, mime string, ok bool) {
	switch e.StreamType {
	case mpegts.StreamTypeAvc:
		return base.MediaKindVideo, base.MimeVideoAvc, true
	case mpegts.StreamTypeHevc:
		return base.MediaKindVideo, base.MimeVideoHevc, true
	case mpegts.StreamTypeMpeg1Video, mpegts.StreamTypeMpeg2Video:
		return base.MediaKindVideo, base.MimeVideoMpeg2, true
	case mpegts.StreamTypeAac:
		return base.MediaKindAudio, base.MimeAudioAac, true
	case mpegts.StreamTypeMpeg1Audio, mpegts.StreamTypeMpeg2Audio:
		return base.MediaKindAudio, base.MimeAudioMpeg, true
	case mpegts.StreamTypeAc3:
		return base.MediaKindAudio, base.MimeAudioAc3, true
	case mpegts.StreamTypeEac3:
		return base.MediaKindAudio, base.MimeAudioEac3, true
	case mpegts.StreamTypePrivate:
		if fi, exist := e.RegistrationFormatIdentifier(); exist {
			switch fi {
			case mpegts.FormatIdentifierAc3:
				return base.MediaKindAudio, base.MimeAudioAc3, true
			case mpegts.FormatIdentifierEac3:
				return base.MediaKindAudio, base.MimeAudioEac3, true
			case mpegts.FormatIdentifierHevc:
				return base.MediaKindVideo, base.MimeVideoHevc, true
			}
		}
		if e.HasDescriptor(mpegts.DescriptorTagAC3) {
			return base.MediaKindAudio, base.MimeAudioAc3, true
		}
		if e.HasDescriptor(mpegts.DescriptorTagEnhancedAC3) {
			return base.MediaKindAudio, base.MimeAudioEac3, true
		}
	}
	return base.MediaKindUnknown, "", false
}

// packetSlot 每次只装一个packet，供astits的demuxer读取
type packetSlot struct {
	b []byte
}

func (s *packetSlot) Read(b []byte) (int, error) {
	if len(s.b) == 0 {
		return 0, io.EOF
	}
	n := copy(b, s.b)
	s.b = s.b[n:]
	return n, nil
}
