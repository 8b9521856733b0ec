// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package datasource 可按偏移随机读取的字节源
package datasource

import (
	"bytes"
	"os"

	"github.com/q191201771/naza/pkg/nazaerrors"
)

// DataSource
//
// ReadAt 与 io.ReaderAt 语义一致：n < len(p) 时err不为nil，读到结尾时err为 io.EOF
//
// Size 总大小未知（比如直播流）时返回 base.ErrSizeUnknown ，见 LiveSource
type DataSource interface {
	ReadAt(p []byte, off int64) (n int, err error)
	Size() (int64, error)
}

// ---------------------------------------------------------------------------------------------------------------------

type FileSource struct {
	filename string
	fp       *os.File
	size     int64
}

func OpenFile(filename string) (*FileSource, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, nazaerrors.Wrap(err)
	}
	fi, err := fp.Stat()
	if err != nil {
		_ = fp.Close()
		return nil, nazaerrors.Wrap(err)
	}
	Log.Debugf("open file source. filename=%s, size=%d", filename, fi.Size())
	return &FileSource{
		filename: filename,
		fp:       fp,
		size:     fi.Size(),
	}, nil
}

func (f *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return f.fp.ReadAt(p, off)
}

func (f *FileSource) Size() (int64, error) {
	return f.size, nil
}

func (f *FileSource) Name() string {
	return f.filename
}

func (f *FileSource) Dispose() error {
	return f.fp.Close()
}

// ---------------------------------------------------------------------------------------------------------------------

// BufferSource 内存中的完整数据
type BufferSource struct {
	r *bytes.Reader
}

// NewBufferSource
//
// @param b: 内部持有该内存块，调用方不应再修改
func NewBufferSource(b []byte) *BufferSource {
	return &BufferSource{
		r: bytes.NewReader(b),
	}
}

func (b *BufferSource) ReadAt(p []byte, off int64) (int, error) {
	return b.r.ReadAt(p, off)
}

func (b *BufferSource) Size() (int64, error) {
	return b.r.Size(), nil
}
