// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iosystem

import (
	"io"
	"net/url"
	"os"

	"code.hybscloud.com/ioblock"
)

// FileBlockIO is the file-medium BlockIO. When opts.UseSynchronousIO is
// set it behaves as a synchronous device; otherwise each
// ReadAt/WriteAt runs on its own goroutine and completes through
// FinishIO/the job queue, approximating the native async-file facility
// (completion port / POSIX aio) the original targets.
type FileBlockIO struct {
	*Base
	file *os.File
}

func (s *IOSystem) openFile(u *url.URL, opts OpenOptions, sink Sink) (BlockIO, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}

	var flag int
	switch {
	case opts.ReadAccess && opts.WriteAccess:
		flag = os.O_RDWR
	case opts.WriteAccess:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if opts.CreateNewStore {
		flag |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	bio := &FileBlockIO{file: f}
	bio.Base = newBase(s, MediumFile, opts, sink, opts.UseSynchronousIO, true)
	bio.Base.backend = bio
	bio.Base.bindSelf(bio)
	bio.Base.size = info.Size()
	bio.Base.markOpen()

	s.register(bio, bio.Base.id)
	if sink != nil {
		if opts.UseSynchronousIO {
			sink.OnOpen(nil, bio)
		} else {
			go sink.OnOpen(nil, bio)
		}
	}
	return bio, nil
}

func (bio *FileBlockIO) startRead(buf *ioblock.IOBuffer) error {
	run := func() {
		buf.SetWindow(0, buf.Cap())
		n, err := bio.file.ReadAt(buf.Window(), buf.Pos())
		if err == io.EOF && n > 0 {
			err = nil
		}
		buf.SetWindow(0, n)
		bio.FinishIO(buf, err, n)
	}
	if bio.syncDevice {
		run()
	} else {
		go run()
	}
	return nil
}

func (bio *FileBlockIO) startWrite(buf *ioblock.IOBuffer, startOffset int64) error {
	run := func() {
		payload := buf.Window()
		if startOffset > 0 {
			payload = payload[startOffset:]
		}
		n, err := bio.file.WriteAt(payload, buf.Pos())
		bio.FinishIO(buf, err, n)
	}
	if bio.syncDevice {
		run()
	} else {
		go run()
	}
	return nil
}

func (bio *FileBlockIO) doResize(newLen int64) error {
	return bio.file.Truncate(newLen)
}

func (bio *FileBlockIO) doClose() error {
	return bio.file.Close()
}
