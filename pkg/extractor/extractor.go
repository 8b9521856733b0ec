// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package extractor 从随机访问的数据源中按188字节逐个喂transport packet，对外提供按track读取AccessUnit以及按时间seek
//
// 锁的划分：
//   - 会话锁 mu 保护读取游标、解析器、sync index、track列表，每次只持有一个packet的处理时间
//   - track队列自己的锁，阻塞在某个track的 Read 上不会影响其他track的喂数据
//   - seekMu 保证同一时刻只有一个seek在进行
package extractor

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/datasource"
	"github.com/q191201771/tsextractor/pkg/syncindex"
	"github.com/q191201771/tsextractor/pkg/trackqueue"
	"github.com/q191201771/tsextractor/pkg/tsparser"
)

type Option struct {
	// ResyncTimeoutMs 丢失packet对齐后，逐字节查找0x47的最长时间，超时后作为IO错误返回
	ResyncTimeoutMs int

	// InitProbeTimeoutMs 初始化时等待音频、视频流都出现的最长时间
	InitProbeTimeoutMs int

	// DurationProbeTimeoutMs 初始化时用于估算总时长的最长时间
	DurationProbeTimeoutMs int

	// DurationConvergeCount 连续这么多次估算值的差距在 DurationConvergeToleranceUs 内，认为估算完成
	DurationConvergeCount       int
	DurationConvergeToleranceUs int64

	SyncIndexHighWater int
	SyncIndexTrimCount int

	// PruneAllTracksOnSeekBeyond seek超出已索引范围时，一边喂数据一边丢弃过期数据。
	// 为false时只丢弃seek参考track的数据，其他track的数据会一直堆积
	PruneAllTracksOnSeekBeyond bool

	// ParserOption 透传给 tsparser
	ParserOption tsparser.Option

	Observer Observer
}

var defaultOption = Option{
	ResyncTimeoutMs:             10000,
	InitProbeTimeoutMs:          20000,
	DurationProbeTimeoutMs:      2000,
	DurationConvergeCount:       5,
	DurationConvergeToleranceUs: 500000,
	SyncIndexHighWater:          syncindex.DefaultHighWater,
	SyncIndexTrimCount:          syncindex.DefaultHighWater / 4,
	PruneAllTracksOnSeekBeyond:  true,
	ParserOption: tsparser.Option{
		DebugDumpMaxNum:    8,
		AbsoluteTimestamps: false,
	},
}

type ModOption func(option *Option)

type Stat struct {
	Offset         int64
	ReadBytes      uint64
	PacketCount    uint64
	BitrateKbits   int
	ResyncCount    uint64
	SyncPointCount uint64
	SeekCount      uint64
	DurationUs     int64

	// SyncIndexLen key为track队列的UniqueKey，加扰的track没有索引
	SyncIndexLen map[string]int

	Parser tsparser.Stat
}

type Extractor struct {
	uniqueKey string
	option    Option
	source    datasource.DataSource
	parser    *tsparser.Parser
	observer  Observer

	seekMu sync.Mutex

	mu               sync.Mutex
	offset           int64
	packet           []byte
	needResync       bool
	resyncBeginTime  time.Time
	lastSyncEvent    *tsparser.SyncEvent
	tracks           []*Track
	seekTrack        *Track
	durationUs       int64
	knownSourceCount int
	br               bitrate.Bitrate

	readBytes      nazaatomic.Uint64
	packetCount    nazaatomic.Uint64
	resyncCount    nazaatomic.Uint64
	syncPointCount nazaatomic.Uint64
	seekCount      nazaatomic.Uint64
}

// Open 创建Extractor，并完成track探测以及时长估算
//
// @return 没有探测到任何track时返回 base.ErrNoTrack ，探测过程中数据源出错时返回该错误
func Open(source datasource.DataSource, modOptions ...ModOption) (*Extractor, error) {
	option := defaultOption
	for _, fn := range modOptions {
		fn(&option)
	}

	observer := option.Observer
	if observer == nil {
		observer = defaultObserver{}
	}

	e := &Extractor{
		uniqueKey: base.GenUkExtractor(),
		option:    option,
		source:    source,
		observer:  observer,
		packet:    make([]byte, base.TsPacketSize),
		br: bitrate.New(func(option *bitrate.Option) {
			option.WindowMs = 5000
		}),
	}
	e.parser = tsparser.New(func(o *tsparser.Option) {
		*o = option.ParserOption
	})
	Log.Infof("[%s] lifecycle new extractor. parser=%s, option=%+v", e.uniqueKey, e.parser.UniqueKey(), option)

	if err := e.init(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Extractor) UniqueKey() string {
	return e.uniqueKey
}

// Tracks 按探测到的先后顺序
func (e *Extractor) Tracks() []*Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret := make([]*Track, len(e.tracks))
	copy(ret, e.tracks)
	return ret
}

// SeekTrack seek参考track，可能为nil（比如所有track都加扰）
func (e *Extractor) SeekTrack() *Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seekTrack
}

// DurationUs 为0表示未知
func (e *Extractor) DurationUs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationUs
}

// SeekTo 移动读取位置到targetUs附近的同步点
//
// seek参考track还没有任何索引时什么也不做，返回nil。
// 超出已索引范围时，继续往后喂数据直到索引覆盖targetUs，中途到达数据末尾时返回 base.ErrEndOfStream
func (e *Extractor) SeekTo(targetUs int64, mode base.SeekMode) (err error) {
	e.seekMu.Lock()
	defer e.seekMu.Unlock()

	begin := base.Clock.Now()
	defer func() {
		costMs := base.Clock.Now().Sub(begin).Milliseconds()
		e.seekCount.Increment()
		Log.Debugf("[%s] seek done. target=%d, mode=%s, cost=%dms, err=%+v", e.uniqueKey, targetUs, mode.ReadableString(), costMs, err)
		e.observer.OnSeek(targetUs, mode, costMs, err)
	}()

	e.mu.Lock()
	seekTrack := e.seekTrack
	if seekTrack == nil || seekTrack.index.Len() == 0 {
		e.mu.Unlock()
		Log.Debugf("[%s] nothing indexed, ignore seek. target=%d", e.uniqueKey, targetUs)
		return nil
	}
	last, _ := seekTrack.index.Last()
	beyond := targetUs > last.TimeUs
	sp, _ := seekTrack.index.Resolve(targetUs, mode)
	reposition := !beyond || e.offset <= sp.Offset
	if reposition {
		Log.Debugf("[%s] seek reposition. target=%d, beyond=%t, offset=%d->%d, time=%d",
			e.uniqueKey, targetUs, beyond, e.offset, sp.Offset, sp.TimeUs)
		e.offset = sp.Offset
		e.needResync = false
	}
	e.mu.Unlock()

	if reposition {
		if err = e.queueDiscontinuityForSeek(sp.TimeUs); err != nil {
			return err
		}
	}

	if beyond {
		if err = e.seekBeyond(targetUs); err != nil {
			return err
		}
	}

	// 每个track跳过同步帧之前的数据
	for _, t := range e.Tracks() {
		q := t.queue
		_ = e.feedUntilBufferAvailable(q)
		for {
			ok, _ := q.HasAvailable()
			if !ok {
				break
			}
			au := q.Peek()
			if au == nil || au.IsDiscontinuity() || au.IsSync {
				break
			}
			if _, derr := q.Dequeue(); derr != nil {
				break
			}
			_ = e.feedUntilBufferAvailable(q)
		}
	}
	return nil
}

// Reset 回到数据源的开头重新读取
//
// 已经探测到的track、索引以及时长保留，track队列中的数据清空
func (e *Extractor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	Log.Infof("[%s] reset. offset=%d", e.uniqueKey, e.offset)
	e.offset = 0
	e.needResync = false
	e.lastSyncEvent = nil
	e.parser.Reset()
}

func (e *Extractor) Stat() Stat {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stat{
		Offset:         e.offset,
		ReadBytes:      e.readBytes.Load(),
		PacketCount:    e.packetCount.Load(),
		BitrateKbits:   int(e.br.Rate()),
		ResyncCount:    e.resyncCount.Load(),
		SyncPointCount: e.syncPointCount.Load(),
		SeekCount:      e.seekCount.Load(),
		DurationUs:     e.durationUs,
		SyncIndexLen:   make(map[string]int),
		Parser:         e.parser.Stat(),
	}
	for _, t := range e.tracks {
		if t.index != nil {
			s.SyncIndexLen[t.queue.UniqueKey()] = t.index.Len()
		}
	}
	return s
}

// ----- private -------------------------------------------------------------------------------------------------------

func (e *Extractor) init() error {
	var (
		haveAudio bool
		haveVideo bool
		lastErr   error
	)

	begin := base.Clock.Now()
	for {
		err := e.feedMore(true)
		if err != nil && err != base.ErrTsSyncByte {
			lastErr = err
			break
		}

		e.mu.Lock()
		if haveAudio && haveVideo {
			e.addSyncPointLocked(e.lastSyncEvent)
			e.lastSyncEvent = nil
			e.mu.Unlock()
			break
		}
		if !haveVideo {
			if q := e.parser.Source(base.MediaKindVideo); q != nil && q.Format() != nil {
				haveVideo = true
				t := e.addTrackLocked(q)
				if t.index != nil {
					e.seekTrack = t
				}
			}
		}
		if !haveAudio {
			if q := e.parser.Source(base.MediaKindAudio); q != nil && q.Format() != nil {
				haveAudio = true
				t := e.addTrackLocked(q)
				if t.index != nil && !haveVideo {
					e.seekTrack = t
				}
			}
		}
		e.addSyncPointLocked(e.lastSyncEvent)
		e.lastSyncEvent = nil
		e.mu.Unlock()

		if base.Clock.Now().Sub(begin) > time.Duration(e.option.InitProbeTimeoutMs)*time.Millisecond {
			Log.Warnf("[%s] init probe timeout. audio=%t, video=%t", e.uniqueKey, haveAudio, haveVideo)
			break
		}
	}

	e.mu.Lock()
	trackNum := len(e.tracks)
	e.disableOrphanSourcesLocked()
	e.mu.Unlock()

	if trackNum == 0 {
		if lastErr != nil && lastErr != base.ErrEndOfStream && !errors.Is(lastErr, base.ErrTsMalformed) {
			Log.Errorf("[%s] init failed. err=%+v", e.uniqueKey, lastErr)
			return lastErr
		}
		Log.Errorf("[%s] no track found. err=%+v", e.uniqueKey, lastErr)
		return base.ErrNoTrack
	}

	if size, err := e.source.Size(); err == nil {
		e.estimateDuration(size)
	} else {
		Log.Debugf("[%s] source size unknown, skip duration estimate. err=%+v", e.uniqueKey, err)
	}

	Log.Infof("[%s] init done. tracks=%d, audio=%t, video=%t, duration=%dus, offset=%d, cost=%dms",
		e.uniqueKey, trackNum, haveAudio, haveVideo, e.DurationUs(), e.Stat().Offset, base.Clock.Now().Sub(begin).Milliseconds())
	return nil
}

// estimateDuration 根据seek参考track的首尾同步点的时间差、偏移差以及数据源总大小推算总时长
func (e *Extractor) estimateDuration(size int64) {
	e.mu.Lock()
	seekTrack := e.seekTrack
	prevLen := 0
	if seekTrack != nil {
		prevLen = seekTrack.index.Len()
	}
	e.mu.Unlock()

	var (
		estimatedUs int64
		estimates   []int64
	)
	if seekTrack != nil {
		begin := base.Clock.Now()
		budget := time.Duration(e.option.DurationProbeTimeoutMs) * time.Millisecond
		for base.Clock.Now().Sub(begin) <= budget {
			err := e.feedMore(false)
			if err != nil && err != base.ErrTsSyncByte {
				break
			}

			e.mu.Lock()
			n := seekTrack.index.Len()
			first, _ := seekTrack.index.First()
			last, _ := seekTrack.index.Last()
			e.mu.Unlock()
			if n <= prevLen {
				continue
			}
			prevLen = n

			diffOffset := last.Offset - first.Offset
			if diffOffset <= 0 {
				continue
			}
			current := int64(float64(size) * float64(last.TimeUs-first.TimeUs) / float64(diffOffset))
			estimates = append(estimates, current)
			if len(estimates) > e.option.DurationConvergeCount {
				estimates = estimates[1:]
				min, max := estimates[0], estimates[0]
				for _, v := range estimates {
					if v < min {
						min = v
					}
					if v > max {
						max = v
					}
				}
				if max-min < e.option.DurationConvergeToleranceUs {
					estimatedUs = current
					break
				}
			}
		}
	}

	// 估算不出来，并且已经读到了末尾时，使用缓存的时长
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.tracks {
		d := estimatedUs
		buffered, finalResult := t.queue.BufferedDurationUs()
		if finalResult == base.ErrEndOfStream {
			d = buffered
		}
		if d > 0 {
			t.durationUs = d
		}
		Log.Debugf("[%s] track duration. track=%s, estimated=%d, buffered=%d, final=%+v",
			e.uniqueKey, t.queue.UniqueKey(), estimatedUs, buffered, finalResult)
	}
	if seekTrack != nil {
		e.durationUs = seekTrack.durationUs
	} else if len(e.tracks) != 0 {
		e.durationUs = e.tracks[0].durationUs
	}
}

// feedMore 从游标位置读一个packet喂给解析器
//
// @param isInit: 为true时，同步帧事件先保存在 lastSyncEvent 中，由init在确认track之后加入索引
//
// @return 到达数据末尾时返回 base.ErrEndOfStream ，并终止所有track队列。
//
//	丢失对齐时返回 base.ErrTsSyncByte ，下次调用时会先逐字节查找0x47
func (e *Extractor) feedMore(isInit bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.needResync {
		if err := e.resyncLocked(); err != nil {
			return err
		}
	}

	n, err := e.source.ReadAt(e.packet, e.offset)
	if n < base.TsPacketSize {
		if err == nil || err == io.EOF {
			e.parser.SignalEndOfStream(base.ErrEndOfStream)
			return base.ErrEndOfStream
		}
		Log.Warnf("[%s] read failed. offset=%d, n=%d, err=%+v", e.uniqueKey, e.offset, n, err)
		return err
	}
	packetOffset := e.offset
	e.offset += int64(n)
	e.readBytes.Add(uint64(n))
	e.packetCount.Increment()
	e.br.Add(n)
	e.observer.OnPacket(packetOffset)

	event := tsparser.NewSyncEvent(packetOffset)
	if err = e.parser.FeedPacket(e.packet, event); err != nil {
		if err == base.ErrTsSyncByte {
			Log.Warnf("[%s] sync byte not found, resync. offset=%d, byte=0x%02x", e.uniqueKey, packetOffset, e.packet[0])
			e.offset = packetOffset + 1
			e.needResync = true
			e.resyncBeginTime = base.Clock.Now()
			e.resyncCount.Increment()
			e.observer.OnResync(packetOffset)
		}
		return err
	}

	if e.parser.SourceCount() != e.knownSourceCount && len(e.tracks) != 0 && !isInit {
		e.disableOrphanSourcesLocked()
	}

	if event.HasReturnedData() {
		if isInit {
			e.lastSyncEvent = event
		} else {
			e.addSyncPointLocked(event)
		}
	}
	return nil
}

// resyncLocked 逐字节查找0x47，找到后游标停在0x47上
func (e *Extractor) resyncLocked() error {
	timeout := time.Duration(e.option.ResyncTimeoutMs) * time.Millisecond
	b := e.packet[:1]
	for {
		n, err := e.source.ReadAt(b, e.offset)
		if n < 1 {
			if err == nil || err == io.EOF {
				e.parser.SignalEndOfStream(base.ErrEndOfStream)
				return base.ErrEndOfStream
			}
			return err
		}
		e.readBytes.Increment()
		if b[0] == base.SyncByte {
			Log.Infof("[%s] resync succ. offset=%d", e.uniqueKey, e.offset)
			e.needResync = false
			return nil
		}
		e.offset++

		cost := base.Clock.Now().Sub(e.resyncBeginTime)
		if cost >= timeout {
			Log.Errorf("[%s] resync timeout. offset=%d, cost=%dms", e.uniqueKey, e.offset, cost.Milliseconds())
			return base.NewErrResyncTimeout(e.offset, cost.Milliseconds())
		}
	}
}

// queueDiscontinuityForSeek 通知解析器时间跳变，清空每个track队列，再喂到每个track都有数据
func (e *Extractor) queueDiscontinuityForSeek(actualSeekTimeUs int64) error {
	e.mu.Lock()
	e.parser.SignalDiscontinuity(base.DiscontinuityTime, &base.DiscontinuityExtra{MediaTimeUs: actualSeekTimeUs})
	tracks := e.tracks
	for _, t := range tracks {
		// 持有e.mu，不能阻塞。其他读取方可能并发取走标记，所以队列为空时直接结束
		for {
			au, err := t.queue.TryDequeue()
			if err == base.ErrDiscontinuity {
				continue
			}
			if au == nil {
				break
			}
			Log.Panicf("[%s] unexpected data after discontinuity. track=%s, au=%+v",
				e.uniqueKey, t.queue.UniqueKey(), au)
		}
	}
	e.mu.Unlock()

	for _, t := range tracks {
		if err := e.feedUntilBufferAvailable(t.queue); err != nil {
			return err
		}
	}
	return nil
}

// seekBeyond 往后喂数据直到索引覆盖targetUs，同时丢弃最新同步点之前的数据
func (e *Extractor) seekBeyond(targetUs int64) error {
	e.mu.Lock()
	seekTrack := e.seekTrack
	prevLen := seekTrack.index.Len()
	e.mu.Unlock()

	for {
		e.mu.Lock()
		last, _ := seekTrack.index.Last()
		n := seekTrack.index.Len()
		tracks := e.tracks
		e.mu.Unlock()
		if last.TimeUs >= targetUs {
			return nil
		}

		if n != prevLen {
			prevLen = n
			if e.option.PruneAllTracksOnSeekBeyond {
				for _, t := range tracks {
					prune(t.queue, last.TimeUs)
				}
			} else {
				prune(seekTrack.queue, last.TimeUs)
			}
		}

		err := e.feedMore(false)
		if err == nil || err == base.ErrTsSyncByte {
			continue
		}
		if err == base.ErrEndOfStream {
			Log.Warnf("[%s] seek beyond end of stream. target=%d, last=%d", e.uniqueKey, targetUs, last.TimeUs)
		}
		return err
	}
}

// feedUntilBufferAvailable 喂数据直到队列中有数据，或者队列已经终止
//
// @return 队列终止时返回终止原因
func (e *Extractor) feedUntilBufferAvailable(q *trackqueue.Queue) error {
	for {
		ok, finalResult := q.HasAvailable()
		if ok {
			return nil
		}
		if finalResult != nil {
			return finalResult
		}
		if err := e.feedMore(false); err != nil && err != base.ErrTsSyncByte {
			// 到达末尾时解析器已经终止了所有队列，其他错误只终止当前队列
			q.SignalEndOfStream(err)
		}
	}
}

// 调用方持有锁
func (e *Extractor) addTrackLocked(q *trackqueue.Queue) *Track {
	t := &Track{
		extractor: e,
		queue:     q,
	}
	format := q.Format()
	if !format.Scrambled {
		t.index = syncindex.New(func(option *syncindex.Option) {
			option.HighWater = e.option.SyncIndexHighWater
			option.TrimCount = e.option.SyncIndexTrimCount
		})
	}
	e.tracks = append(e.tracks, t)
	Log.Infof("[%s] add track. track=%s, kind=%s, mime=%s, pid=%d, scrambled=%t",
		e.uniqueKey, q.UniqueKey(), q.Kind().ReadableString(), format.Mime, format.Pid, format.Scrambled)
	e.observer.OnTrackAdded(q.Kind(), format)
	return t
}

// 调用方持有锁
func (e *Extractor) addSyncPointLocked(event *tsparser.SyncEvent) {
	if event == nil || !event.HasReturnedData() {
		return
	}
	for _, t := range e.tracks {
		if t.queue != event.Queue() {
			continue
		}
		if t.index == nil {
			return
		}
		t.index.Add(event.TimeUs(), event.Offset())
		e.syncPointCount.Increment()
		e.observer.OnSyncPoint(t.queue.Kind(), event.TimeUs(), event.Offset())
		return
	}
}

// disableOrphanSourcesLocked 没有对应track的队列不再缓存数据
//
// 调用方持有锁
func (e *Extractor) disableOrphanSourcesLocked() {
	sources := e.parser.Sources()
	e.knownSourceCount = len(sources)
	for _, q := range sources {
		found := false
		for _, t := range e.tracks {
			if t.queue == q {
				found = true
				break
			}
		}
		if !found {
			Log.Debugf("[%s] disable orphan source. queue=%s, kind=%s", e.uniqueKey, q.UniqueKey(), q.Kind().ReadableString())
			q.Enable(false)
		}
	}
}

// prune 丢弃队首时间戳早于timeUs的数据，遇到discontinuity标记或者队列为空时停止
func prune(q *trackqueue.Queue, timeUs int64) {
	for {
		t, err := q.NextTimeUs()
		if err != nil || t >= timeUs {
			return
		}
		if _, err = q.Dequeue(); err != nil {
			return
		}
	}
}
