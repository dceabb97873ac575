// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpstream implements an asynchronous HTTP/1.1 client on top of
// an AsyncIOStream: request construction, response status-line and header
// parsing, content-length and chunked body framing, and automatic
// redirect following.
package httpstream

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"code.hybscloud.com/ioblock/internal/charclass"
	"code.hybscloud.com/ioblock/iosystem"
	"code.hybscloud.com/ioblock/stream"
)

// Sink receives the single completion callback for a request: readers get
// OnReadHTTPDocument, POST senders get OnWriteHTTPDocument. Exactly one of
// the two fires exactly once per HttpStream.
type Sink interface {
	OnReadHTTPDocument(err error, h *HttpStream)
	OnWriteHTTPDocument(err error, h *HttpStream)
}

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateWritingRequest
	stateReadingHeader
	stateReadingBody
	stateReadingChunk
)

// Flags records protocol-level state that outlives a single read.
type Flags uint8

const (
	FlagKeepAlive Flags = 1 << iota
	FlagConnectedToPeer
	FlagReadLastChunkHeader
)

type headerLine struct {
	name  string
	value string
}

// HttpStream drives one request/response exchange over an AsyncIOStream.
// Construct one with ReadHTTPDocument or SendHTTPPost; the Sink's
// completion callback fires once the response document is fully read, for
// a GET and a POST alike. On a keep-alive response the connection is left
// open, but an HttpStream issues no further request over it.
type HttpStream struct {
	mu sync.Mutex

	system *iosystem.IOSystem
	stream *stream.AsyncIOStream
	sink   Sink
	opts   Options

	method Method
	url    *url.URL

	isPost         bool
	postBody       []byte
	postType       string
	postSubtype    string

	state state
	flags Flags

	majorVersion, minorVersion int
	statusCode                 int

	headers []headerLine

	headerScanPos int64
	newlineRun    int
	headerEndPos  int64
	bodyStartPos  int64

	haveContentLength bool
	contentLength     int64
	chunked           bool
	nextChunkHeaderPos int64

	redirects int
	finished  bool
}

// ReadHTTPDocument issues a GET for rawURL and reports the fully read
// response to sink.OnReadHTTPDocument.
func ReadHTTPDocument(system *iosystem.IOSystem, rawURL string, sink Sink, opts ...Option) (*HttpStream, error) {
	return open(system, MethodGet, rawURL, nil, "", "", sink, opts)
}

// SendHTTPPost issues a POST of body (content-typed typ/subtype) to
// rawURL and reports the fully read response to sink.OnWriteHTTPDocument.
func SendHTTPPost(system *iosystem.IOSystem, rawURL string, body []byte, typ, subtype string, sink Sink, opts ...Option) (*HttpStream, error) {
	return open(system, MethodPost, rawURL, body, typ, subtype, sink, opts)
}

func open(system *iosystem.IOSystem, method Method, rawURL string, body []byte, typ, subtype string, sink Sink, optFns []Option) (*HttpStream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("httpstream: %w", err)
	}
	switch u.Scheme {
	case "https":
		return nil, ErrHTTPSRequired
	case "http", "":
	default:
		return nil, ErrUnsupportedScheme
	}

	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	h := &HttpStream{
		system:      system,
		sink:        sink,
		opts:        o,
		method:      method,
		url:         u,
		isPost:      method == MethodPost,
		postBody:    body,
		postType:    typ,
		postSubtype: subtype,
	}
	if err := h.connect(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *HttpStream) connect() error {
	h.state = stateConnecting
	h.headerScanPos = 0
	h.newlineRun = 0
	h.headers = h.headers[:0]

	dialHost := h.url.Host
	if !strings.Contains(dialHost, ":") {
		dialHost += ":80"
	}
	if h.opts.usingProxy() {
		dialHost = fmt.Sprintf("%s:%d", h.opts.ProxyHost, h.opts.ProxyPort)
	}

	s, err := stream.Open(h.system, "tcp://"+dialHost, iosystem.OpenOptions{
		ReadAccess: true, WriteAccess: true,
	}, h)
	if err != nil {
		return err
	}
	h.stream = s
	return nil
}

// StatusCode returns the parsed response status code, valid once the
// header has been received.
func (h *HttpStream) StatusCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusCode
}

// URL returns the current request URL, which changes across redirects.
func (h *HttpStream) URL() *url.URL {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Stream exposes the underlying AsyncIOStream so a Sink can read the
// response body once it has been delivered.
func (h *HttpStream) Stream() *stream.AsyncIOStream {
	return h.stream
}

// BodyRange reports the [start, end) byte range of the response body
// within the underlying stream's cache, valid once reading completes.
// For a chunked response, chunk framing has already been spliced out by
// RemoveNBytes, so the range is the decoded body, not the wire form.
func (h *HttpStream) BodyRange() (start, end int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bodyStartPos, h.stream.GetDataLength()
}

// GetStringHeader returns the last occurrence of a response header by
// name (case-insensitive, hyphen-word canonicalized).
func (h *HttpStream) GetStringHeader(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.getHeader(name)
}

// GetIntegerHeader parses a response header's value as a base-10 integer.
func (h *HttpStream) GetIntegerHeader(name string) (int64, bool) {
	v, ok := h.GetStringHeader(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (h *HttpStream) getHeader(name string) (string, bool) {
	key := internName(name)
	for i := len(h.headers) - 1; i >= 0; i-- {
		if h.headers[i].name == key {
			return h.headers[i].value, true
		}
	}
	return "", false
}

// Close releases the underlying stream; safe to call after completion or
// to abort an in-flight request early.
func (h *HttpStream) Close() error {
	h.mu.Lock()
	s := h.stream
	h.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

// --- stream.Sink ---

func (h *HttpStream) OnOpen(err error, s *stream.AsyncIOStream) {
	if err != nil {
		h.finish(err)
		return
	}

	h.mu.Lock()
	h.stream = s
	h.flags |= FlagConnectedToPeer
	h.mu.Unlock()

	if err := h.writeRequest(); err != nil {
		h.finish(err)
		return
	}
	// The request went out through the same stream cache the response is
	// read into; drop it so the response starts at position 0, where
	// receiveHeaderData and parseHeader begin.
	if err := h.stream.RemoveNBytes(0, int(h.stream.GetDataLength())); err != nil {
		h.finish(err)
		return
	}

	h.mu.Lock()
	h.state = stateReadingHeader
	h.mu.Unlock()

	if err := h.stream.ListenForMoreBytes(); err != nil {
		h.finish(err)
	}
}

func (h *HttpStream) OnFlush(error) {}

func (h *HttpStream) OnStreamDisconnect(err error) {
	h.mu.Lock()
	st := h.state
	haveLen := h.haveContentLength
	h.mu.Unlock()
	if st == stateReadingBody && !haveLen {
		h.finish(nil)
		return
	}
	h.finish(stream.ErrDisconnected)
}

func (h *HttpStream) OnReadyToRead(err error, _ int64) {
	if err != nil {
		h.mu.Lock()
		st := h.state
		haveLen := h.haveContentLength
		h.mu.Unlock()
		if errors.Is(err, stream.ErrEOF) && st == stateReadingBody && !haveLen {
			h.finish(nil)
			return
		}
		h.finish(err)
		return
	}

	for {
		h.mu.Lock()
		st := h.state
		h.mu.Unlock()

		switch st {
		case stateReadingHeader:
			done, err := h.receiveHeaderData()
			if err != nil {
				h.finish(err)
				return
			}
			if !done {
				if err := h.stream.ListenForMoreBytes(); err != nil {
					h.finish(err)
				}
				return
			}
			continue
		case stateReadingBody:
			done, err := h.readBody()
			if err != nil {
				h.finish(err)
				return
			}
			if done {
				h.finish(nil)
				return
			}
			if err := h.stream.ListenForMoreBytes(); err != nil {
				h.finish(err)
			}
			return
		case stateReadingChunk:
			done, err := h.readChunks()
			if err != nil {
				h.finish(err)
				return
			}
			if done {
				h.finish(nil)
				return
			}
			if err := h.stream.ListenForMoreBytes(); err != nil {
				h.finish(err)
			}
			return
		default:
			return
		}
	}
}

// --- request construction ---

func (h *HttpStream) writeRequest() error {
	target := h.url.RequestURI()
	if target == "" {
		target = "/"
	}
	if h.opts.usingProxy() {
		target = h.url.String()
	}

	if _, err := h.stream.Printf("%s %s HTTP/1.1\r\n", h.method, target); err != nil {
		return err
	}
	if _, err := h.stream.Printf("Host: %s\r\n", h.url.Host); err != nil {
		return err
	}
	if _, err := h.stream.Printf("User-Agent: %s\r\n", h.opts.UserAgent); err != nil {
		return err
	}
	if _, err := h.stream.Printf("Accept: %s\r\n", h.opts.Accept); err != nil {
		return err
	}
	if h.opts.AcceptLanguage != "" {
		if _, err := h.stream.Printf("Accept-Language: %s\r\n", h.opts.AcceptLanguage); err != nil {
			return err
		}
	}
	if h.isPost {
		if _, err := h.stream.Printf("Content-Type: %s/%s\r\n", h.postType, h.postSubtype); err != nil {
			return err
		}
		if _, err := h.stream.Printf("Content-Length: %d\r\n", len(h.postBody)); err != nil {
			return err
		}
	}
	if _, err := h.stream.Printf("Connection: Keep-Alive\r\n\r\n"); err != nil {
		return err
	}
	if h.isPost && len(h.postBody) > 0 {
		if _, err := h.stream.Write(h.postBody); err != nil {
			return err
		}
	}
	return h.stream.Flush()
}

// --- response header parsing ---

// byteAt peeks the byte at pos without moving the stream's own read
// cursor. pos must already be below the stream's data length, or this
// blocks waiting for more bytes to arrive.
func (h *HttpStream) byteAt(pos int64) (byte, error) {
	b, err := h.stream.GetPtrRef(pos, 1)
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, stream.ErrOutOfRange
	}
	return b[0], nil
}

// receiveHeaderData scans newly-arrived bytes for the header-terminating
// blank line, tolerant of CRLF, bare LF, and LF-CR line endings. It never
// reads past the stream's current data length, so it never blocks.
func (h *HttpStream) receiveHeaderData() (bool, error) {
	dataLen := h.stream.GetDataLength()
	for h.headerScanPos < dataLen {
		b, err := h.byteAt(h.headerScanPos)
		if err != nil {
			return false, err
		}
		h.headerScanPos++
		switch b {
		case '\r':
			// doesn't affect the newline run either way
		case '\n':
			h.newlineRun++
			if h.newlineRun >= 2 {
				h.headerEndPos = h.headerScanPos
				if err := h.parseHeader(); err != nil {
					return false, err
				}
				return true, nil
			}
		default:
			h.newlineRun = 0
		}
	}
	return false, nil
}

// readLine reads and consumes one CRLF/LF/LF-CR-terminated line from the
// stream's own cursor, returning its content without the terminator. The
// lookahead byte after a terminator is peeked through byteAt rather than
// stream.PeekByte so it never blocks waiting for bytes past headerEndPos
// that haven't arrived yet: every call here is bounded to data already
// known to be resident from the earlier blank-line scan.
func (h *HttpStream) readLine() (string, error) {
	var buf []byte
	for {
		b, err := h.stream.GetByte()
		if err != nil {
			return "", err
		}
		var pair byte
		if b == '\n' {
			pair = '\r'
		} else if b == '\r' {
			pair = '\n'
		} else {
			buf = append(buf, b)
			continue
		}
		if pos := h.stream.GetPosition(); pos < h.stream.GetDataLength() {
			if pb, err := h.byteAt(pos); err == nil && pb == pair {
				_, _ = h.stream.GetByte()
			}
		}
		return string(buf), nil
	}
}

func (h *HttpStream) parseHeader() error {
	h.stream.SetPosition(0)

	first, err := h.readLine()
	if err != nil {
		return err
	}
	if err := h.parseStatusLine(first); err != nil {
		return err
	}

	h.headers = h.headers[:0]
	for {
		line, err := h.readLine()
		if err != nil {
			return err
		}
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(h.headers) > 0 {
				last := &h.headers[len(h.headers)-1]
				last.value += " " + strings.TrimSpace(line)
			}
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		h.headers = append(h.headers, headerLine{
			name:  internName(line[:idx]),
			value: strings.TrimSpace(line[idx+1:]),
		})
	}
	h.bodyStartPos = h.stream.GetPosition()

	return h.applyParsedHeaders()
}

func (h *HttpStream) parseStatusLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return ErrMalformedStatusLine
	}
	var major, minor int
	if _, err := fmt.Sscanf(strings.TrimPrefix(parts[0], "HTTP/"), "%d.%d", &major, &minor); err != nil {
		return ErrMalformedStatusLine
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return ErrMalformedStatusLine
	}
	h.majorVersion, h.minorVersion, h.statusCode = major, minor, code
	return nil
}

func (h *HttpStream) applyParsedHeaders() error {
	h.haveContentLength = false
	h.chunked = false
	h.flags &^= FlagKeepAlive

	if v, ok := h.getHeader("Connection"); ok {
		for _, tok := range strings.Split(v, ",") {
			switch strings.ToLower(strings.TrimSpace(tok)) {
			case "close":
				h.flags &^= FlagKeepAlive
			case "keep-alive":
				h.flags |= FlagKeepAlive
			}
		}
	} else if h.majorVersion > 1 || (h.majorVersion == 1 && h.minorVersion >= 1) {
		h.flags |= FlagKeepAlive
	}

	if v, ok := h.getHeader("Content-Length"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n >= 0 {
			h.contentLength = n
			h.haveContentLength = true
		}
	}
	if v, ok := h.getHeader("Transfer-Encoding"); ok && strings.EqualFold(strings.TrimSpace(v), "chunked") {
		h.chunked = true
		h.haveContentLength = false
	}

	switch h.statusCode {
	case 301, 302, 305, 306:
		return h.followRedirect()
	}

	if h.chunked {
		h.state = stateReadingChunk
		h.nextChunkHeaderPos = h.bodyStartPos
		h.flags &^= FlagReadLastChunkHeader
	} else {
		h.state = stateReadingBody
	}
	return nil
}

func (h *HttpStream) followRedirect() error {
	loc, ok := h.getHeader("Location")
	if !ok || loc == "" {
		return ErrNoRedirectLocation
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return err
	}
	next := h.url.ResolveReference(ref)
	if h.redirects >= maxReasonableRedirects || next.String() == h.url.String() {
		return ErrTooManyRedirects
	}
	h.redirects++
	h.url = next

	if h.stream != nil {
		_ = h.stream.Close()
	}
	return h.connect()
}

// --- body ---

func (h *HttpStream) readBody() (bool, error) {
	if !h.haveContentLength {
		return false, nil // completes on EOF via OnReadyToRead/OnStreamDisconnect
	}
	end := h.bodyStartPos + h.contentLength
	return h.stream.GetDataLength() >= end, nil
}

// --- chunked transfer decoding ---

// readChunks consumes as many complete chunks as are currently buffered,
// splicing each chunk's size header and trailing CRLF out of the stream
// via RemoveNBytes so the body ends up contiguous and chunk-free. It
// returns done=true once the zero-size chunk and trailer have been seen
// and spliced out.
func (h *HttpStream) readChunks() (bool, error) {
	for {
		if h.flags&FlagReadLastChunkHeader != 0 {
			end, found, err := h.findBlankLine(h.nextChunkHeaderPos)
			if err != nil {
				return false, err
			}
			if !found {
				return false, nil
			}
			if err := h.stream.RemoveNBytes(h.nextChunkHeaderPos, int(end-h.nextChunkHeaderPos)); err != nil {
				return false, err
			}
			return true, nil
		}

		size, headerLen, ok, err := h.parseChunkHeader(h.nextChunkHeaderPos)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if err := h.stream.RemoveNBytes(h.nextChunkHeaderPos, headerLen); err != nil {
			return false, err
		}

		if size == 0 {
			h.flags |= FlagReadLastChunkHeader
			continue
		}

		if h.stream.GetDataLength() < h.nextChunkHeaderPos+size+2 {
			return false, nil
		}
		if err := h.stream.RemoveNBytes(h.nextChunkHeaderPos+size, 2); err != nil {
			return false, err
		}
		h.nextChunkHeaderPos += size
	}
}

// parseChunkHeader parses "hex-size [; extension] CRLF" starting at
// start. ok is false when not enough bytes have arrived yet to tell.
func (h *HttpStream) parseChunkHeader(start int64) (size int64, headerLen int, ok bool, err error) {
	dataLen := h.stream.GetDataLength()
	p := start

	var hexDigits []byte
	for p < dataLen {
		b, e := h.byteAt(p)
		if e != nil {
			return 0, 0, false, e
		}
		if !charclass.Is(b, charclass.Hex) {
			break
		}
		hexDigits = append(hexDigits, b)
		p++
	}
	if len(hexDigits) == 0 {
		if p >= dataLen {
			return 0, 0, false, nil
		}
		return 0, 0, false, ErrMalformedChunkHeader
	}

	for p < dataLen {
		b, e := h.byteAt(p)
		if e != nil {
			return 0, 0, false, e
		}
		if b == '\r' || b == '\n' {
			break
		}
		p++
	}
	if p >= dataLen {
		return 0, 0, false, nil
	}

	b, e := h.byteAt(p)
	if e != nil {
		return 0, 0, false, e
	}
	p++
	if b == '\r' && p < dataLen {
		if nb, e := h.byteAt(p); e == nil && nb == '\n' {
			p++
		}
	}

	size, convErr := strconv.ParseInt(string(hexDigits), 16, 64)
	if convErr != nil {
		return 0, 0, false, ErrMalformedChunkHeader
	}
	return size, int(p - start), true, nil
}

// findBlankLine scans the (possibly empty) trailer section that follows
// the zero-size last-chunk line for its terminating blank line. The
// last-chunk line's own CRLF was already consumed by parseChunkHeader, so
// the run starts at 1: an immediately following CRLF with no trailer
// headers is itself the blank line.
func (h *HttpStream) findBlankLine(start int64) (int64, bool, error) {
	dataLen := h.stream.GetDataLength()
	run := 1
	p := start
	for p < dataLen {
		b, err := h.byteAt(p)
		if err != nil {
			return 0, false, err
		}
		p++
		switch b {
		case '\r':
		case '\n':
			run++
			if run >= 2 {
				return p, true, nil
			}
		default:
			run = 0
		}
	}
	return 0, false, nil
}

// --- completion ---

func (h *HttpStream) finish(err error) {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return
	}
	h.finished = true
	keepAlive := err == nil && h.flags&FlagKeepAlive != 0
	s := h.stream
	h.mu.Unlock()

	if !keepAlive && s != nil {
		_ = s.Close()
	}
	if h.sink == nil {
		return
	}
	if h.isPost {
		h.sink.OnWriteHTTPDocument(err, h)
	} else {
		h.sink.OnReadHTTPDocument(err, h)
	}
}
