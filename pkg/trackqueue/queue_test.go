// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package trackqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsextractor/pkg/base"
)

func newAu(timeUs int64, isSync bool) *base.AccessUnit {
	return &base.AccessUnit{
		Payload: []byte{uint8(timeUs)},
		TimeUs:  timeUs,
		IsSync:  isSync,
	}
}

func TestQueue_Fifo(t *testing.T) {
	q := New(base.MediaKindVideo, nil)
	for i := int64(0); i < 10; i++ {
		q.Push(newAu(i*1000, i%5 == 0))
	}
	assert.Equal(t, 10, q.Len())
	for i := int64(0); i < 10; i++ {
		au, err := q.Dequeue()
		assert.Equal(t, nil, err)
		assert.Equal(t, i*1000, au.TimeUs)
	}
	assert.Equal(t, int64(9000), q.LatestDequeuedMeta().TimeUs)

	ok, err := q.HasAvailable()
	assert.Equal(t, false, ok)
	assert.Equal(t, nil, err)
}

func TestQueue_Damaged(t *testing.T) {
	q := New(base.MediaKindAudio, nil)
	q.Push(newAu(0, true))
	au := newAu(1, true)
	au.Damaged = true
	q.Push(au)
	q.Push(newAu(2, true))
	q.SignalEndOfStream(base.ErrEndOfStream)

	var times []int64
	for {
		au, err := q.Dequeue()
		if err != nil {
			assert.Equal(t, base.ErrEndOfStream, err)
			break
		}
		times = append(times, au.TimeUs)
	}
	assert.Equal(t, []int64{0, 2}, times)
}

func TestQueue_PushDiscontinuity(t *testing.T) {
	// discard只保留已有的discontinuity标记
	{
		q := New(base.MediaKindVideo, nil)
		q.Push(newAu(0, true))
		q.PushDiscontinuity(base.DiscontinuityTime, nil, false)
		q.Push(newAu(1, true))
		q.Push(newAu(2, false))
		q.PushDiscontinuity(base.DiscontinuitySeek, &base.DiscontinuityExtra{MediaTimeUs: 100}, true)
		assert.Equal(t, 2, q.Len())
		assert.Equal(t, 2, q.PendingDiscontinuities())

		au, err := q.Dequeue()
		assert.Equal(t, base.ErrDiscontinuity, err)
		assert.Equal(t, base.DiscontinuityTime, au.Discontinuity)
		assert.Equal(t, 1, q.PendingDiscontinuities())

		au, err = q.Dequeue()
		assert.Equal(t, base.ErrDiscontinuity, err)
		assert.Equal(t, int64(100), au.Extra.MediaTimeUs)
		assert.Equal(t, 0, q.PendingDiscontinuities())

		// 标记不会重复返回
		ok, _ := q.HasAvailable()
		assert.Equal(t, false, ok)
	}

	// None只做重置
	{
		q := New(base.MediaKindVideo, nil)
		q.Push(newAu(0, true))
		q.SignalEndOfStream(base.ErrEndOfStream)
		q.PushDiscontinuity(base.DiscontinuityNone, nil, true)
		assert.Equal(t, 0, q.Len())
		assert.Equal(t, 0, q.PendingDiscontinuities())
		_, err := q.NextTimeUs()
		assert.Equal(t, base.ErrWouldBlock, err)
	}
}

func TestQueue_FormatChange(t *testing.T) {
	q := New(base.MediaKindAudio, &base.Format{Mime: base.MimeAudioAac})
	q.PushDiscontinuity(base.DiscontinuityVideoFormat, nil, false)
	_, err := q.Dequeue()
	assert.Equal(t, base.ErrDiscontinuity, err)
	assert.IsNotNil(t, q.Format())

	q.PushDiscontinuity(base.DiscontinuityFormatChange, nil, false)
	_, err = q.Dequeue()
	assert.Equal(t, base.ErrDiscontinuity, err)
	assert.Equal(t, (*base.Format)(nil), q.Format())

	au := newAu(0, true)
	au.Format = &base.Format{Mime: base.MimeAudioMpeg}
	q.Push(au)
	_, err = q.Dequeue()
	assert.Equal(t, nil, err)
	assert.Equal(t, base.MimeAudioMpeg, q.Format().Mime)
}

func TestQueue_BufferedDurationUs(t *testing.T) {
	q := New(base.MediaKindVideo, nil)
	d, err := q.BufferedDurationUs()
	assert.Equal(t, int64(0), d)
	assert.Equal(t, nil, err)

	q.Push(newAu(1000, true))
	q.Push(newAu(5000, false))
	q.Push(newAu(3000, false))
	q.PushDiscontinuity(base.DiscontinuityTime, nil, false)
	// 时间戳回退，不与前一段比较
	q.Push(newAu(100, true))
	q.Push(newAu(600, false))
	d, _ = q.BufferedDurationUs()
	assert.Equal(t, int64(4000+500), d)

	q.Push(&base.AccessUnit{Payload: make([]byte, 1000), TimeUs: 3000000})
	d, _ = q.BufferedDurationUs()
	assert.Equal(t, int64(4000+2999900), d)
	assert.Equal(t, int64(1005/2), q.EstimatedBytesPerSec())
}

func TestQueue_LatestEnqueuedMeta(t *testing.T) {
	q := New(base.MediaKindVideo, nil)
	assert.Equal(t, (*base.AccessUnitMeta)(nil), q.LatestEnqueuedMeta())

	q.Push(newAu(0, true))
	q.Push(newAu(40000, false))
	m := q.LatestEnqueuedMeta()
	assert.Equal(t, int64(40000), m.TimeUs)
	assert.Equal(t, int64(40000), m.DurationUs)
	assert.Equal(t, int64(40000), q.LastQueuedTimeUs())

	// B帧不更新最新时间
	q.Push(newAu(20000, false))
	m = q.LatestEnqueuedMeta()
	assert.Equal(t, int64(40000), m.TimeUs)
	assert.Equal(t, int64(40000), m.DurationUs)

	// discontinuity重置
	q.PushDiscontinuity(base.DiscontinuityTime, nil, false)
	assert.Equal(t, (*base.AccessUnitMeta)(nil), q.LatestEnqueuedMeta())
	q.Push(newAu(80000, false))
	q.Push(newAu(60000, false))
	m = q.LatestEnqueuedMeta()
	assert.Equal(t, int64(80000), m.TimeUs)
	assert.Equal(t, int64(20000), m.DurationUs)
}

func TestQueue_NextTimeUs(t *testing.T) {
	q := New(base.MediaKindVideo, nil)
	_, err := q.NextTimeUs()
	assert.Equal(t, base.ErrWouldBlock, err)

	q.Push(newAu(7, true))
	ts, err := q.NextTimeUs()
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(7), ts)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, int64(7), q.Peek().TimeUs)

	_, _ = q.Dequeue()
	q.SignalEndOfStream(base.ErrEndOfStream)
	_, err = q.NextTimeUs()
	assert.Equal(t, base.ErrEndOfStream, err)
}

func TestQueue_IsFinished(t *testing.T) {
	q := New(base.MediaKindVideo, nil)
	q.Push(newAu(9950000, true))
	assert.Equal(t, true, q.IsFinished(10000000))
	assert.Equal(t, false, q.IsFinished(20000000))
	assert.Equal(t, false, q.IsFinished(0))
	q.SignalEndOfStream(base.ErrEndOfStream)
	assert.Equal(t, true, q.IsFinished(0))
}

func TestQueue_EnableClear(t *testing.T) {
	q := New(base.MediaKindAudio, &base.Format{Mime: base.MimeAudioAac})
	q.Enable(false)
	q.Push(newAu(0, true))
	ok, err := q.HasAvailable()
	assert.Equal(t, false, ok)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, q.Len())

	q.SignalEndOfStream(base.ErrEndOfStream)
	_, err = q.HasAvailable()
	assert.Equal(t, base.ErrEndOfStream, err)

	q.Enable(true)
	q.Clear()
	q.Push(newAu(0, true))
	ok, err = q.HasAvailable()
	assert.Equal(t, true, ok)
	assert.Equal(t, nil, err)
	assert.Equal(t, (*base.Format)(nil), q.Format())
}

// 关闭的队列不会累积discontinuity标记
func TestQueue_DisabledDiscontinuity(t *testing.T) {
	q := New(base.MediaKindAudio, nil)
	q.Enable(false)
	for i := 0; i < 3; i++ {
		q.PushDiscontinuity(base.DiscontinuityTime, nil, true)
		q.Push(base.NewDiscontinuityAccessUnit(base.DiscontinuityTime, nil))
	}
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.PendingDiscontinuities())

	q.Enable(true)
	q.PushDiscontinuity(base.DiscontinuityTime, nil, true)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.PendingDiscontinuities())
}

func TestQueue_TryDequeue(t *testing.T) {
	q := New(base.MediaKindVideo, nil)
	_, err := q.TryDequeue()
	assert.Equal(t, base.ErrWouldBlock, err)

	q.Push(newAu(0, true))
	q.PushDiscontinuity(base.DiscontinuityTime, nil, false)
	au, err := q.TryDequeue()
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(0), au.TimeUs)
	assert.Equal(t, int64(0), q.LatestDequeuedMeta().TimeUs)
	_, err = q.TryDequeue()
	assert.Equal(t, base.ErrDiscontinuity, err)
	assert.Equal(t, 0, q.PendingDiscontinuities())

	q.SignalEndOfStream(base.ErrEndOfStream)
	_, err = q.TryDequeue()
	assert.Equal(t, base.ErrEndOfStream, err)
}

// 消费者先阻塞，之后生产者push
func TestQueue_BlockingDequeue(t *testing.T) {
	q := New(base.MediaKindVideo, nil)
	done := make(chan []int64)
	go func() {
		var times []int64
		for i := 0; i < 5; i++ {
			au, err := q.Dequeue()
			assert.Equal(t, nil, err)
			times = append(times, au.TimeUs)
		}
		done <- times
	}()

	time.Sleep(10 * time.Millisecond)
	for i := int64(0); i < 5; i++ {
		q.Push(newAu(i, true))
	}

	select {
	case times := <-done:
		assert.Equal(t, []int64{0, 1, 2, 3, 4}, times)
	case <-time.After(5 * time.Second):
		t.Fatal("dequeue deadlock")
	}
}

// 阻塞中的消费者被end of stream唤醒
func TestQueue_SignalEndOfStreamWakeup(t *testing.T) {
	q := New(base.MediaKindAudio, nil)
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := q.Dequeue()
			done <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	ioErr := errors.New("mock io error")
	q.SignalEndOfStream(ioErr)

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.Equal(t, ioErr, err)
		case <-time.After(5 * time.Second):
			t.Fatal("dequeue not woken up")
		}
	}
}
