// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpstream

import (
	"strings"
	"sync"
)

// commonHeaderNames seeds the process-wide interning table so the common
// case, parsing a response whose headers are all well-known names, never
// allocates a new string for the name half of a header line.
var commonHeaderNames = []string{
	"Host", "User-Agent", "Accept", "Accept-Language", "Accept-Encoding",
	"Content-Type", "Content-Length", "Content-Encoding", "Content-Range",
	"Transfer-Encoding", "Connection", "Keep-Alive", "Location", "Date",
	"Last-Modified", "Expires", "Cache-Control", "ETag", "Referer",
	"Set-Cookie", "Cookie", "Authorization", "WWW-Authenticate",
	"Proxy-Authenticate", "Proxy-Authorization", "Server", "Vary",
	"Range", "If-Modified-Since", "If-None-Match", "Trailer", "Upgrade",
}

var headerNameTable sync.Map // canonical-cased string -> itself

func init() {
	for _, name := range commonHeaderNames {
		headerNameTable.Store(name, name)
	}
}

// internName canonicalizes a header name (Title-Case-With-Hyphens) and
// returns the copy already held in the table if one with the same bytes
// exists, so repeated header lines for well-known names share one
// allocation instead of a fresh string per parsed line.
func internName(name string) string {
	canon := canonicalHeaderName(name)
	actual, _ := headerNameTable.LoadOrStore(canon, canon)
	return actual.(string)
}

// canonicalHeaderName title-cases each hyphen-separated word, matching the
// conventional wire form ("content-length" -> "Content-Length").
func canonicalHeaderName(name string) string {
	b := []byte(strings.ToLower(strings.TrimSpace(name)))
	startOfWord := true
	for i, c := range b {
		switch {
		case c == '-':
			startOfWord = true
		case startOfWord:
			if c >= 'a' && c <= 'z' {
				b[i] = c - 'a' + 'A'
			}
			startOfWord = false
		}
	}
	return string(b)
}
