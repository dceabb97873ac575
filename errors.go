// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioblock

import "errors"

// Sentinel errors of the root package, in the style every package of the
// substrate follows: one errors.go per package, errors.New,
// "pkg: message". Layer-specific errors (e.g. httpstream's
// ErrHTTPSRequired) live in their own package's errors.go as independent
// sentinels; they do not wrap these.
var (
	// ErrInvalidArg reports that a caller passed an argument that violates
	// a precondition (e.g. re-issuing an op on a buffer whose op is not
	// yet OpNone).
	ErrInvalidArg = errors.New("ioblock: invalid argument")

	// ErrNotImplemented reports an operation unsupported by the addressed
	// medium. (Resize on a NetBlockIO reports iosystem.ErrNotResizable.)
	ErrNotImplemented = errors.New("ioblock: not implemented")

	// ErrEOF reports a read that reached the end of the medium. Distinct
	// from io.EOF because EOF is sometimes a normal non-error condition
	// (non-keep-alive HTTP body) and sometimes promoted to a disconnect
	// error by a higher layer — callers must be able to tell "ioblock's
	// own EOF" apart from an unrelated io.EOF surfacing through a wrapped
	// stdlib reader.
	ErrEOF = errors.New("ioblock: end of file")

	// ErrOutOfMemory reports that buffer or pool allocation failed.
	ErrOutOfMemory = errors.New("ioblock: out of memory")
)
