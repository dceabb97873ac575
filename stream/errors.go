// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import "errors"

var (
	// ErrClosed reports an operation attempted on a closed stream.
	ErrClosed = errors.New("stream: closed")

	// ErrEOF reports a read that reached the end of the underlying medium
	// with no more bytes available.
	ErrEOF = errors.New("stream: eof")

	// ErrDisconnected reports EOF on a keep-alive stream: the peer closed
	// before the expected amount of data arrived.
	ErrDisconnected = errors.New("stream: peer disconnected")

	// ErrOutOfRange reports a position or length outside the stream's
	// currently buffered data.
	ErrOutOfRange = errors.New("stream: position out of range")

	// ErrWouldBlock reports a read/write that has no data ready yet and
	// must be retried once the event sink's OnReadyToRead/OnFlush fires.
	ErrWouldBlock = errors.New("stream: would block")
)
