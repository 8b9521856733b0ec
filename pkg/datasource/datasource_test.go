// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package datasource

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsextractor/pkg/base"
)

func TestFileSource(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "a.ts")
	err := os.WriteFile(filename, []byte("0123456789"), 0644)
	assert.Equal(t, nil, err)

	fs, err := OpenFile(filename)
	assert.Equal(t, nil, err)
	defer fs.Dispose()

	size, err := fs.Size()
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(10), size)

	p := make([]byte, 4)
	n, err := fs.ReadAt(p, 3)
	assert.Equal(t, nil, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("3456"), p)

	n, err = fs.ReadAt(p, 8)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, n)

	_, err = OpenFile(filepath.Join(t.TempDir(), "notexist.ts"))
	assert.Equal(t, true, err != nil)
}

func TestBufferSource(t *testing.T) {
	var ds DataSource = NewBufferSource([]byte("0123456789"))
	size, err := ds.Size()
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(10), size)

	p := make([]byte, 3)
	n, err := ds.ReadAt(p, 7)
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, n)
	n, err = ds.ReadAt(p, 10)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
}

func TestLiveSource_BlockingRead(t *testing.T) {
	ls := NewLiveSource()
	_, err := ls.Size()
	assert.Equal(t, base.ErrSizeUnknown, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = ls.Write([]byte("0123"))
		time.Sleep(50 * time.Millisecond)
		_, _ = ls.Write([]byte("4567"))
	}()

	p := make([]byte, 6)
	n, err := ls.ReadAt(p, 0)
	assert.Equal(t, nil, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte("012345"), p)
	assert.Equal(t, int64(8), ls.Buffered())
}

func TestLiveSource_Close(t *testing.T) {
	ls := NewLiveSource()
	n64, err := ls.ReadFrom(bytes.NewReader([]byte("0123456789")))
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(10), n64)

	p := make([]byte, 4)
	n, err := ls.ReadAt(p, 8)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, n)
	n, err = ls.ReadAt(p, 20)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)

	_, err = ls.Write([]byte("a"))
	assert.Equal(t, base.ErrSourceDisposed, err)

	broken := errors.New("broken")
	ls2 := NewLiveSource()
	ls2.CloseWithError(broken)
	_, err = ls2.ReadAt(p, 0)
	assert.Equal(t, broken, err)
}

func TestLiveSource_Timeout(t *testing.T) {
	ls := NewLiveSource(func(option *LiveSourceOption) {
		option.ReadTimeoutMs = 20
	})
	_, _ = ls.Write([]byte("01"))
	p := make([]byte, 4)
	_, err := ls.ReadAt(p, 0)
	assert.Equal(t, base.ErrReadTimeout, err)
}

func TestLiveSource_Evict(t *testing.T) {
	ls := NewLiveSource(func(option *LiveSourceOption) {
		option.MaxBufferSize = 8
	})
	_, _ = ls.Write([]byte("0123456789"))
	assert.Equal(t, int64(10), ls.Buffered())

	p := make([]byte, 2)
	_, err := ls.ReadAt(p, 0)
	assert.Equal(t, base.ErrDataEvicted, err)
	n, err := ls.ReadAt(p, 5)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("56"), p)
}
