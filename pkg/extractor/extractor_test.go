// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package extractor

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/datasource"
	"github.com/q191201771/tsextractor/pkg/tsgen"
)

func generate(t *testing.T, modOptions ...tsgen.ModOption) ([]byte, tsgen.Result) {
	var buf bytes.Buffer
	ret, err := tsgen.Generate(&buf, modOptions...)
	assert.Equal(t, nil, err)
	return buf.Bytes(), ret
}

func open(t *testing.T, b []byte, modOptions ...ModOption) *Extractor {
	mods := append([]ModOption{func(option *Option) {
		// 避免机器较慢时估算不出时长
		option.DurationProbeTimeoutMs = 60000
	}}, modOptions...)
	e, err := Open(datasource.NewBufferSource(b), mods...)
	assert.Equal(t, nil, err)
	assert.IsNotNil(t, e)
	return e
}

func trackOf(e *Extractor, kind base.MediaKind) *Track {
	for _, t := range e.Tracks() {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func readAll(t *testing.T, track *Track) (aus []*base.AccessUnit, err error) {
	for {
		au, err := track.Read(nil)
		if err == base.ErrDiscontinuity {
			continue
		}
		if err != nil {
			return aus, err
		}
		aus = append(aus, au)
	}
}

type recordObserver struct {
	mu          sync.Mutex
	trackAdded  int
	packets     int
	resyncs     []int64
	syncPoints  map[base.MediaKind]int
	seekResults []error
}

func newRecordObserver() *recordObserver {
	return &recordObserver{
		syncPoints: make(map[base.MediaKind]int),
	}
}

func (o *recordObserver) OnTrackAdded(kind base.MediaKind, format *base.Format) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trackAdded++
}

func (o *recordObserver) OnPacket(offset int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.packets++
}

func (o *recordObserver) OnResync(offset int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resyncs = append(o.resyncs, offset)
}

func (o *recordObserver) OnSyncPoint(kind base.MediaKind, timeUs int64, offset int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncPoints[kind]++
}

func (o *recordObserver) OnSeek(targetUs int64, mode base.SeekMode, costMs int64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seekResults = append(o.seekResults, err)
}

type errSource struct {
	err error
}

func (s *errSource) ReadAt(p []byte, off int64) (int, error) {
	return 0, s.err
}

func (s *errSource) Size() (int64, error) {
	return 0, base.ErrSizeUnknown
}

func TestOpen(t *testing.T) {
	b, ret := generate(t)
	observer := newRecordObserver()
	e := open(t, b, func(option *Option) {
		option.Observer = observer
	})

	tracks := e.Tracks()
	assert.Equal(t, 2, len(tracks))
	video := trackOf(e, base.MediaKindVideo)
	audio := trackOf(e, base.MediaKindAudio)
	assert.Equal(t, video, e.SeekTrack())
	assert.Equal(t, true, video.IsSeekReference())
	assert.Equal(t, false, audio.IsSeekReference())

	vf := video.Format()
	assert.Equal(t, base.MimeVideoAvc, vf.Mime)
	assert.Equal(t, false, vf.Scrambled)
	af := audio.Format()
	assert.Equal(t, base.MimeAudioAac, af.Mime)
	assert.Equal(t, 44100, af.SampleRate)

	// 按码率推算出来的时长
	d := e.DurationUs()
	assert.Equal(t, true, d > 9000000 && d < 11000000)
	assert.Equal(t, d, vf.DurationUs)

	vaus, err := readAll(t, video)
	assert.Equal(t, base.ErrEndOfStream, err)
	assert.Equal(t, ret.VideoFrameCount, len(vaus))
	for i, au := range vaus {
		assert.Equal(t, int64(i)*40000, au.TimeUs)
		assert.Equal(t, i%25 == 0, au.IsSync)
	}
	aaus, err := readAll(t, audio)
	assert.Equal(t, base.ErrEndOfStream, err)
	assert.Equal(t, ret.AudioFrameCount, len(aaus))

	// 读完之后再读，仍然是EOS
	_, err = video.Read(nil)
	assert.Equal(t, base.ErrEndOfStream, err)

	stat := e.Stat()
	assert.Equal(t, int64(len(b)), stat.Offset)
	assert.Equal(t, uint64(len(b)), stat.ReadBytes)
	assert.Equal(t, uint64(len(b)/base.TsPacketSize), stat.PacketCount)
	assert.Equal(t, uint64(0), stat.ResyncCount)
	assert.Equal(t, ret.KeyFrameCount, stat.SyncIndexLen[video.UniqueKey()])

	assert.Equal(t, 2, observer.trackAdded)
	assert.Equal(t, len(b)/base.TsPacketSize, observer.packets)
	assert.Equal(t, ret.KeyFrameCount, observer.syncPoints[base.MediaKindVideo])
	assert.Equal(t, 0, len(observer.resyncs))
}

func TestOpen_NoTrack(t *testing.T) {
	// 空数据
	_, err := Open(datasource.NewBufferSource(nil))
	assert.Equal(t, base.ErrNoTrack, err)

	// 全是垃圾数据
	_, err = Open(datasource.NewBufferSource(make([]byte, 4096)))
	assert.Equal(t, base.ErrNoTrack, err)

	// 数据源出错
	broken := errors.New("broken")
	_, err = Open(&errSource{err: broken})
	assert.Equal(t, broken, err)
}

func TestOpen_DurationFromBuffered(t *testing.T) {
	// 同步点太少，估算不出来，使用读到末尾时缓存的时长
	b, _ := generate(t, func(option *tsgen.Option) {
		option.DurationMs = 3000
	})
	e := open(t, b)
	assert.Equal(t, int64(2960000), e.DurationUs())
	assert.Equal(t, int64(2960000), trackOf(e, base.MediaKindVideo).Format().DurationUs)
}

func TestOpen_SizeUnknown(t *testing.T) {
	b, ret := generate(t, func(option *tsgen.Option) {
		option.DurationMs = 2000
	})
	ls := datasource.NewLiveSource()
	_, err := ls.Write(b)
	assert.Equal(t, nil, err)
	ls.CloseWithError(nil)

	e, err := Open(ls)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(0), e.DurationUs())

	vaus, err := readAll(t, trackOf(e, base.MediaKindVideo))
	assert.Equal(t, base.ErrEndOfStream, err)
	assert.Equal(t, ret.VideoFrameCount, len(vaus))
}

func TestExtractor_ConcurrentRead(t *testing.T) {
	b, ret := generate(t, func(option *tsgen.Option) {
		option.DurationMs = 5000
	})
	e := open(t, b)

	var (
		wg     sync.WaitGroup
		counts = make(map[base.MediaKind]int)
		mu     sync.Mutex
	)
	for _, track := range e.Tracks() {
		wg.Add(1)
		go func(track *Track) {
			defer wg.Done()
			aus, err := readAll(t, track)
			assert.Equal(t, base.ErrEndOfStream, err)
			mu.Lock()
			counts[track.Kind()] = len(aus)
			mu.Unlock()
		}(track)
	}
	wg.Wait()
	assert.Equal(t, ret.VideoFrameCount, counts[base.MediaKindVideo])
	assert.Equal(t, ret.AudioFrameCount, counts[base.MediaKindAudio])
}

func TestExtractor_Seek(t *testing.T) {
	b, _ := generate(t)
	observer := newRecordObserver()
	e := open(t, b, func(option *Option) {
		option.Observer = observer
	})
	video := trackOf(e, base.MediaKindVideo)
	audio := trackOf(e, base.MediaKindAudio)

	// 已索引范围内
	au, err := video.Read(NewSeekReadOption(5500000, base.SeekPreviousSync))
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(5000000), au.TimeUs)
	assert.Equal(t, true, au.IsSync)
	au, err = video.Read(nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(5040000), au.TimeUs)

	au, err = audio.Read(nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, au.TimeUs >= 5000000 && au.TimeUs < 5100000)

	au, err = video.Read(NewSeekReadOption(3500000, base.SeekNextSync))
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(4000000), au.TimeUs)

	// 往回seek
	au, err = video.Read(NewSeekReadOption(1000000, base.SeekPreviousSync))
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(1000000), au.TimeUs)

	// 不支持的模式按previous sync处理
	au, err = video.Read(NewSeekReadOption(2500000, base.SeekClosest))
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(2000000), au.TimeUs)

	// 非参考track忽略seek请求
	au, err = audio.Read(NewSeekReadOption(0, base.SeekPreviousSync))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, au.TimeUs >= 2000000)

	// seek之后可以一直读到结尾
	vaus, err := readAll(t, video)
	assert.Equal(t, base.ErrEndOfStream, err)
	assert.Equal(t, 250-2*25-1, len(vaus))
	assert.Equal(t, int64(9960000), vaus[len(vaus)-1].TimeUs)

	assert.Equal(t, uint64(4), e.Stat().SeekCount)
	assert.Equal(t, 4, len(observer.seekResults))
}

func TestExtractor_SeekIdempotence(t *testing.T) {
	b, _ := generate(t)
	e := open(t, b)
	video := trackOf(e, base.MediaKindVideo)

	e.mu.Lock()
	sp, ok := video.index.Resolve(3000000, base.SeekPreviousSync)
	e.mu.Unlock()
	assert.Equal(t, true, ok)
	assert.Equal(t, int64(3000000), sp.TimeUs)

	for i := 0; i < 2; i++ {
		assert.Equal(t, nil, e.SeekTo(3000000, base.SeekPreviousSync))
		au, err := video.Read(nil)
		assert.Equal(t, nil, err)
		assert.Equal(t, int64(3000000), au.TimeUs)
		assert.Equal(t, true, au.IsSync)
	}
}

func TestExtractor_SeekBeyond(t *testing.T) {
	// 估算时长时，索引到6秒就收敛了
	b, _ := generate(t)

	// 所有track都裁剪
	{
		e := open(t, b)
		video := trackOf(e, base.MediaKindVideo)
		audio := trackOf(e, base.MediaKindAudio)
		last, _ := video.index.Last()
		assert.Equal(t, true, last.TimeUs < 8500000)

		assert.Equal(t, nil, e.SeekTo(8500000, base.SeekNextSync))
		au, err := video.Read(nil)
		assert.Equal(t, nil, err)
		assert.Equal(t, int64(8000000), au.TimeUs)
		au, err = audio.Read(nil)
		assert.Equal(t, nil, err)
		assert.Equal(t, true, au.TimeUs >= 8000000)
	}

	// 只裁剪参考track
	{
		e := open(t, b, func(option *Option) {
			option.PruneAllTracksOnSeekBeyond = false
		})
		video := trackOf(e, base.MediaKindVideo)
		audio := trackOf(e, base.MediaKindAudio)
		assert.Equal(t, nil, e.SeekTo(8500000, base.SeekNextSync))
		au, err := video.Read(nil)
		assert.Equal(t, nil, err)
		assert.Equal(t, int64(8000000), au.TimeUs)
		au, err = audio.Read(nil)
		assert.Equal(t, nil, err)
		assert.Equal(t, int64(0), au.TimeUs)
	}

	// 超出数据末尾
	{
		e := open(t, b)
		video := trackOf(e, base.MediaKindVideo)
		err := e.SeekTo(9500000, base.SeekPreviousSync)
		assert.Equal(t, base.ErrEndOfStream, err)

		// 仍然超出索引范围，并且游标已经在末尾
		_, err = video.Read(NewSeekReadOption(9500000, base.SeekPreviousSync))
		assert.Equal(t, base.ErrEndOfStream, err)

		// 此时已经全部索引，索引范围内可以正常seek
		au, err := video.Read(NewSeekReadOption(8500000, base.SeekPreviousSync))
		assert.Equal(t, nil, err)
		assert.Equal(t, int64(8000000), au.TimeUs)
		last, _ := video.index.Last()
		assert.Equal(t, int64(9000000), last.TimeUs)
	}
}

func TestExtractor_SeekWithoutIndex(t *testing.T) {
	// 视频加扰，没有索引，seek什么也不做
	b, ret := generate(t, func(option *tsgen.Option) {
		option.DurationMs = 2000
		option.EnableAudio = false
		option.ScrambleVideo = true
	})
	e := open(t, b)
	video := trackOf(e, base.MediaKindVideo)
	assert.Equal(t, true, video.Format().Scrambled)
	assert.Equal(t, (*Track)(nil), e.SeekTrack())
	assert.Equal(t, false, video.IsSeekReference())

	offset := e.Stat().Offset
	assert.Equal(t, nil, e.SeekTo(5000000, base.SeekPreviousSync))
	assert.Equal(t, offset, e.Stat().Offset)
	assert.Equal(t, 0, len(e.Stat().SyncIndexLen))

	vaus, err := readAll(t, video)
	assert.Equal(t, base.ErrEndOfStream, err)
	assert.Equal(t, ret.VideoFrameCount, len(vaus))
}

func TestExtractor_Resync(t *testing.T) {
	b, ret := generate(t, func(option *tsgen.Option) {
		option.DurationMs = 3000
	})
	pos := 200 * base.TsPacketSize
	var noisy []byte
	noisy = append(noisy, b[:pos]...)
	noisy = append(noisy, make([]byte, 5)...)
	noisy = append(noisy, b[pos:]...)

	observer := newRecordObserver()
	e := open(t, noisy, func(option *Option) {
		option.Observer = observer
	})
	vaus, err := readAll(t, trackOf(e, base.MediaKindVideo))
	assert.Equal(t, base.ErrEndOfStream, err)
	assert.Equal(t, ret.VideoFrameCount, len(vaus))

	stat := e.Stat()
	assert.Equal(t, uint64(1), stat.ResyncCount)
	// 对齐出错的那个packet读了一次，查找0x47时又逐字节读了5个字节
	assert.Equal(t, uint64(len(noisy)+base.TsPacketSize), stat.ReadBytes)
	assert.Equal(t, []int64{int64(pos)}, observer.resyncs)
}

func TestExtractor_ResyncTimeout(t *testing.T) {
	b, _ := generate(t, func(option *tsgen.Option) {
		option.DurationMs = 3000
	})
	pos := 200 * base.TsPacketSize
	var noisy []byte
	noisy = append(noisy, b[:pos]...)
	noisy = append(noisy, make([]byte, 1000)...)
	noisy = append(noisy, b[pos:]...)

	e := open(t, noisy, func(option *Option) {
		option.ResyncTimeoutMs = 0
	})
	vaus, err := readAll(t, trackOf(e, base.MediaKindVideo))
	assert.Equal(t, true, errors.Is(err, base.ErrResyncTimeout))
	assert.Equal(t, true, len(vaus) > 0)
}

func TestExtractor_Reset(t *testing.T) {
	b, ret := generate(t, func(option *tsgen.Option) {
		option.DurationMs = 2000
	})
	e := open(t, b)
	video := trackOf(e, base.MediaKindVideo)
	vaus, err := readAll(t, video)
	assert.Equal(t, base.ErrEndOfStream, err)
	assert.Equal(t, ret.VideoFrameCount, len(vaus))

	e.Reset()
	assert.Equal(t, int64(0), e.Stat().Offset)
	vaus, err = readAll(t, video)
	assert.Equal(t, base.ErrEndOfStream, err)
	assert.Equal(t, ret.VideoFrameCount, len(vaus))
	assert.Equal(t, int64(0), vaus[0].TimeUs)
}

func TestSniff(t *testing.T) {
	b, _ := generate(t, func(option *tsgen.Option) {
		option.DurationMs = 1000
	})
	mime, confidence, ok := Sniff(datasource.NewBufferSource(b))
	assert.Equal(t, true, ok)
	assert.Equal(t, MimeMpeg2Ts, mime)
	assert.Equal(t, float32(0.1), confidence)

	// 不足5个packet
	_, _, ok = Sniff(datasource.NewBufferSource(b[:4*base.TsPacketSize]))
	assert.Equal(t, false, ok)

	// 第3个packet没对齐
	broken := append([]byte(nil), b[:5*base.TsPacketSize]...)
	broken[2*base.TsPacketSize] = 0x00
	_, _, ok = Sniff(datasource.NewBufferSource(broken))
	assert.Equal(t, false, ok)
}
