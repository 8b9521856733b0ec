// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabytes"
)

// DumpFile 将track读取出的AccessUnit按帧落盘，便于离线对比
//
// 每条消息的格式：
//
//	ver(4) | typ(4) | len(4) | timestamp(4) | body(len)
//
// 其中typ的低8位为 MediaKind ，DumpTypeFlagSync 位表示关键帧；timestamp单位毫秒，未知时为 DumpTimestampUnknown
type DumpFile struct {
	file *os.File
}

const (
	DumpFileVer uint32 = 2

	DumpTypeFlagSync     uint32 = 0x100
	DumpTimestampUnknown uint32 = 0xFFFFFFFF
)

type DumpFileMessage struct {
	Ver       uint32
	Typ       uint32
	Len       uint32
	Timestamp uint32
	Body      []byte
}

func NewDumpFile() *DumpFile {
	return &DumpFile{}
}

func (d *DumpFile) OpenToWrite(filename string) (err error) {
	dir := filepath.Dir(filename)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	d.file, err = os.Create(filename)
	return
}

func (d *DumpFile) OpenToRead(filename string) (err error) {
	d.file, err = os.Open(filename)
	return
}

func (d *DumpFile) WriteAccessUnit(kind MediaKind, au *AccessUnit) error {
	typ := uint32(kind) & 0xFF
	if au.IsSync {
		typ |= DumpTypeFlagSync
	}
	ts := DumpTimestampUnknown
	if au.HasTime() {
		ts = uint32(au.TimeUs / 1000)
	}
	_, err := d.file.Write(d.pack(typ, ts, au.Payload))
	return err
}

func (d *DumpFile) ReadOneMessage() (m DumpFileMessage, err error) {
	m.Ver, err = bele.ReadBeUint32(d.file)
	if err != nil {
		return
	}
	if m.Ver != DumpFileVer {
		err = fmt.Errorf("%w. dump file ver=%d", ErrUnsupported, m.Ver)
		return
	}
	m.Typ, err = bele.ReadBeUint32(d.file)
	if err != nil {
		return
	}
	m.Len, err = bele.ReadBeUint32(d.file)
	if err != nil {
		return
	}
	m.Timestamp, err = bele.ReadBeUint32(d.file)
	if err != nil {
		return
	}
	m.Body = make([]byte, m.Len)
	_, err = io.ReadFull(d.file, m.Body)
	return
}

func (d *DumpFile) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}

// ---------------------------------------------------------------------------------------------------------------------

func (m *DumpFileMessage) Kind() MediaKind {
	return MediaKind(m.Typ & 0xFF)
}

func (m *DumpFileMessage) IsSync() bool {
	return m.Typ&DumpTypeFlagSync != 0
}

func (m *DumpFileMessage) DebugString() string {
	return fmt.Sprintf("ver: %d, typ: %d, len: %d, timestamp: %d, len: %d, hex: %s",
		m.Ver, m.Typ, m.Len, m.Timestamp, len(m.Body), hex.Dump(nazabytes.Prefix(m.Body, 16)))
}

// ---------------------------------------------------------------------------------------------------------------------

func (d *DumpFile) pack(typ uint32, ts uint32, b []byte) []byte {
	ret := make([]byte, len(b)+16)
	bele.BePutUint32(ret, DumpFileVer)
	bele.BePutUint32(ret[4:], typ)
	bele.BePutUint32(ret[8:], uint32(len(b)))
	bele.BePutUint32(ret[12:], ts)
	copy(ret[16:], b)
	return ret
}
