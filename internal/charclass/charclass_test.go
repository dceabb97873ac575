// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package charclass

import "testing"

func TestIs(t *testing.T) {
	cases := []struct {
		b    byte
		cls  Class
		want bool
	}{
		{' ', Whitespace, true},
		{'\n', Newline, true},
		{'\n', NonNewlineWhitespace, false},
		{'\r', Whitespace, true},
		{'a', Alpha, true},
		{'a', Hex, true},
		{'g', Hex, false},
		{'9', Digit, true},
		{'9', Hex, true},
		{'_', Word, true},
		{'_', Alphanum, false},
		{'z', Alphanum, true},
		{'?', URLQuery, true},
		{'?', URLPath, false},
		{'/', URLPath, true},
		{'/', URLFragment, true},
	}
	for _, c := range cases {
		if got := Is(c.b, c.cls); got != c.want {
			t.Errorf("Is(%q, %v) = %v, want %v", c.b, c.cls, got, c.want)
		}
	}
}

func TestOf(t *testing.T) {
	cls := Of('5')
	for _, want := range []Class{Digit, Hex, Alphanum, Word} {
		if cls&want == 0 {
			t.Errorf("Of('5') missing class %v, got %v", want, cls)
		}
	}
}
