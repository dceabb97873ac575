// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpstream

import "strings"

// ContentType is a parsed Content-Type header value.
type ContentType struct {
	Type    string
	Subtype string
	Charset string
}

// knownTypes and knownSubtypes back ContentType.Recognized.
// ParseContentType never rejects a value outside these sets, it just
// passes the raw token through unchanged.
var knownTypes = map[string]bool{
	"application": true, "audio": true, "image": true, "message": true,
	"multipart": true, "text": true, "video": true, "software": true,
	"*": true,
}

var knownSubtypes = map[string]bool{
	"html": true, "plain": true, "xml": true, "jpeg": true, "gif": true,
	"png": true, "octet-stream": true, "json": true, "css": true,
	"javascript": true, "mixed": true, "form-data": true,
	"x-www-form-urlencoded": true, "*": true,
}

// Recognized reports whether both halves of ct are among the types this
// engine has specific handling for, as opposed to an opaque passthrough.
func (ct ContentType) Recognized() bool {
	return knownTypes[ct.Type] && knownSubtypes[ct.Subtype]
}

func (ct ContentType) String() string {
	s := ct.Type + "/" + ct.Subtype
	if ct.Charset != "" {
		s += "; charset=" + ct.Charset
	}
	return s
}

// ParseContentType parses a Content-Type header value into its type,
// subtype, and optional charset parameter. Unrecognized type/subtype
// tokens are preserved verbatim (lowercased) rather than rejected.
func ParseContentType(header string) ContentType {
	var ct ContentType
	parts := strings.Split(header, ";")
	main := strings.TrimSpace(parts[0])

	switch {
	case main == "*/*" || main == "*":
		ct.Type, ct.Subtype = "*", "*"
	default:
		if i := strings.IndexByte(main, '/'); i >= 0 {
			ct.Type = strings.ToLower(strings.TrimSpace(main[:i]))
			ct.Subtype = strings.ToLower(strings.TrimSpace(main[i+1:]))
		} else {
			ct.Type = strings.ToLower(main)
		}
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if v, ok := strings.CutPrefix(p, "charset="); ok {
			ct.Charset = strings.Trim(v, `"`)
		}
	}
	return ct
}
