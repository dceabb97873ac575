// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpstream

import "errors"

var (
	// ErrHTTPSRequired reports a request for an https:// URL; the HTTP
	// engine speaks plain HTTP/1.1 over a NetBlockIO only.
	ErrHTTPSRequired = errors.New("httpstream: https scheme not supported")

	// ErrUnsupportedScheme reports a URL scheme other than http/https.
	ErrUnsupportedScheme = errors.New("httpstream: unsupported URL scheme")

	// ErrTooManyRedirects reports a redirect chain that reached the
	// maximum reasonable redirect count, or a redirect back to the
	// request's own URL.
	ErrTooManyRedirects = errors.New("httpstream: too many redirects")

	// ErrNoRedirectLocation reports a 3xx redirect status with no Location header.
	ErrNoRedirectLocation = errors.New("httpstream: redirect with no Location header")

	// ErrMalformedStatusLine reports a response whose first line is not
	// a well-formed "HTTP/major.minor code reason" status line.
	ErrMalformedStatusLine = errors.New("httpstream: malformed status line")

	// ErrMalformedChunkHeader reports a chunked-encoding chunk size that
	// could not be parsed as a hex integer.
	ErrMalformedChunkHeader = errors.New("httpstream: malformed chunk header")

	// ErrClosed reports an operation on an HttpStream whose request has
	// already completed and whose underlying stream has been closed.
	ErrClosed = errors.New("httpstream: closed")
)
