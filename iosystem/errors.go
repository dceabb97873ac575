// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iosystem

import "errors"

var (
	// ErrClosed reports an operation attempted on a closed BlockIO.
	ErrClosed = errors.New("iosystem: block io closed")

	// ErrNotResizable reports a Resize call on a medium that does not support it.
	ErrNotResizable = errors.New("iosystem: medium is not resizable")

	// ErrUnsupportedScheme reports an OpenBlockIO URL whose scheme does not
	// match this IOSystem's medium.
	ErrUnsupportedScheme = errors.New("iosystem: unsupported url scheme")

	// ErrInvalidURL reports a URL this IOSystem's medium cannot parse.
	ErrInvalidURL = errors.New("iosystem: invalid url")

	// ErrOpInProgress reports read_block/write_block called on a buffer
	// that already has a non-none op tag.
	ErrOpInProgress = errors.New("iosystem: buffer already has an operation in progress")

	// ErrNoValidData reports write_block called without FlagHasValidData set.
	ErrNoValidData = errors.New("iosystem: write buffer has no valid data")
)
