// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpstream

// Method is one of the request methods this engine can issue or parse.
type Method int

const (
	MethodGet Method = iota
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodLink
	MethodOptions
	MethodTrace
)

var methodNames = [...]string{
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodLink:    "LINK",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "GET"
	}
	return methodNames[m]
}

// maxReasonableRedirects bounds automatic redirect following; a chain
// longer than this, or one that loops back on itself, fails the request
// with ErrTooManyRedirects instead of looping forever.
const maxReasonableRedirects = 5
