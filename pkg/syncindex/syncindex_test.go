// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package syncindex

import (
	"math/rand"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsextractor/pkg/base"
)

func TestIndex_Resolve(t *testing.T) {
	idx := New()
	_, ok := idx.Resolve(5000000, base.SeekPreviousSync)
	assert.Equal(t, false, ok)

	idx.Add(0, 0)
	idx.Add(2000000, 50000)
	idx.Add(4000000, 100000)

	golden := []struct {
		target int64
		mode   base.SeekMode
		offset int64
	}{
		{3000000, base.SeekPreviousSync, 50000},
		{3000000, base.SeekNextSync, 100000},
		{3000000, base.SeekClosestSync, 50000},
		{3000000, base.SeekClosest, 50000},
		{3000000, base.SeekMode(100), 50000},
		// 正好在同步点上
		{2000000, base.SeekPreviousSync, 50000},
		{4000000, base.SeekPreviousSync, 100000},
		// 超出范围时夹紧
		{9000000, base.SeekNextSync, 100000},
		{-1, base.SeekPreviousSync, 0},
		{-1, base.SeekNextSync, 0},
	}
	for _, item := range golden {
		sp, ok := idx.Resolve(item.target, item.mode)
		assert.Equal(t, true, ok)
		assert.Equal(t, item.offset, sp.Offset)
	}
}

func TestIndex_Add(t *testing.T) {
	idx := New()
	idx.Add(300, 3)
	idx.Add(100, 1)
	idx.Add(200, 2)
	idx.Add(200, 22)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []SyncPoint{{100, 1}, {200, 22}, {300, 3}}, idx.points)

	first, _ := idx.First()
	last, _ := idx.Last()
	assert.Equal(t, int64(100), first.TimeUs)
	assert.Equal(t, int64(300), last.TimeUs)

	idx.Clear()
	_, ok := idx.Last()
	assert.Equal(t, false, ok)
}

func TestIndex_Trim(t *testing.T) {
	// 顺序插入时淘汰头部
	{
		idx := New(func(option *Option) {
			option.HighWater = 100
			option.TrimCount = 25
		})
		for i := int64(0); i < 1000; i++ {
			idx.Add(i, i*188)
			assert.Equal(t, true, idx.Len() <= 100)
		}
		last, _ := idx.Last()
		assert.Equal(t, int64(999), last.TimeUs)
		first, _ := idx.First()
		assert.Equal(t, true, first.TimeUs > 900)
	}

	// 插入点靠近头部时淘汰尾部
	{
		idx := New(func(option *Option) {
			option.HighWater = 10
			option.TrimCount = 4
		})
		for i := int64(1); i <= 9; i++ {
			idx.Add(i*100, i)
		}
		idx.Add(0, 0)
		assert.Equal(t, 6, idx.Len())
		first, _ := idx.First()
		last, _ := idx.Last()
		assert.Equal(t, int64(0), first.TimeUs)
		assert.Equal(t, int64(500), last.TimeUs)
	}

	// 乱序插入同样不超过上限
	{
		idx := New(func(option *Option) {
			option.HighWater = 64
			option.TrimCount = 16
		})
		r := rand.New(rand.NewSource(1))
		for i := 0; i < 5000; i++ {
			idx.Add(r.Int63n(100000), int64(i))
			assert.Equal(t, true, idx.Len() <= 64)
		}
		for i := 1; i < idx.Len(); i++ {
			assert.Equal(t, true, idx.points[i-1].TimeUs < idx.points[i].TimeUs)
		}
	}
}

// 上限和淘汰条数不合理时，也不会把刚插入的点淘汰掉
func TestIndex_TrimKeepsLatest(t *testing.T) {
	{
		idx := New(func(option *Option) {
			option.HighWater = 1
		})
		for i := int64(0); i < 5; i++ {
			idx.Add(i*100, i)
			last, ok := idx.Last()
			assert.Equal(t, true, ok)
			assert.Equal(t, i*100, last.TimeUs)
			assert.Equal(t, true, idx.Len() <= 2)
		}
	}

	{
		idx := New(func(option *Option) {
			option.HighWater = 5
			option.TrimCount = 100
		})
		for i := int64(0); i < 5; i++ {
			idx.Add(i, i)
		}
		assert.Equal(t, 1, idx.Len())
		last, _ := idx.Last()
		assert.Equal(t, int64(4), last.TimeUs)

		sp, ok := idx.Resolve(10, base.SeekPreviousSync)
		assert.Equal(t, true, ok)
		assert.Equal(t, int64(4), sp.Offset)
	}
}
