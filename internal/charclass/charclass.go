// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package charclass provides a byte classification table used by the
// stream skip primitives (SkipWhileCharType, SkipUntilCharType) and by
// httpstream's chunk-size scan.
package charclass

// Class is a bitmask of character classes a byte can belong to.
type Class uint16

const (
	Whitespace Class = 1 << iota
	NonNewlineWhitespace
	Newline
	Digit
	Hex
	Alpha
	Alphanum
	Word
	URLHost
	URLPath
	URLQuery
	URLFragment
)

var table [256]Class

func init() {
	for c := 0; c < 256; c++ {
		var cls Class
		b := byte(c)
		switch b {
		case ' ', '\t', '\v', '\f', '\r', '\n':
			cls |= Whitespace
			if b == '\n' || b == '\r' {
				cls |= Newline
			} else {
				cls |= NonNewlineWhitespace
			}
		}
		if b >= '0' && b <= '9' {
			cls |= Digit | Hex | Alphanum | Word
		}
		if (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F') {
			cls |= Hex
		}
		if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') {
			cls |= Alpha | Alphanum | Word
		}
		if b == '_' {
			cls |= Word
		}
		switch {
		case cls&Alphanum != 0, b == '-', b == '.', b == '~':
			cls |= URLHost
		}
		switch {
		case cls&Alphanum != 0, b == '-', b == '.', b == '_', b == '~',
			b == '/', b == ':', b == '@', b == '%',
			b == '!', b == '$', b == '&', b == '\'', b == '(', b == ')',
			b == '*', b == '+', b == ',', b == ';', b == '=':
			cls |= URLPath
		}
		switch {
		case cls&URLPath != 0, b == '?':
			cls |= URLQuery
		}
		switch {
		case cls&URLPath != 0, b == '?', b == '/':
			cls |= URLFragment
		}
		table[c] = cls
	}
}

// Is reports whether b belongs to any class in want.
func Is(b byte, want Class) bool {
	return table[b]&want != 0
}

// Of returns the full classification of b.
func Of(b byte) Class {
	return table[b]
}
