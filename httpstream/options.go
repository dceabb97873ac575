// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpstream

// Options configures request construction and proxy behavior for one
// HttpStream. Defaults follow defaultOptions.
type Options struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string

	// ProxyHost/ProxyPort, when set, cause every request to connect to
	// the proxy instead of the origin and send the request line in
	// absolute-URI form.
	ProxyHost string
	ProxyPort int
}

type Option func(*Options)

func WithUserAgent(ua string) Option { return func(o *Options) { o.UserAgent = ua } }
func WithAccept(accept string) Option { return func(o *Options) { o.Accept = accept } }
func WithAcceptLanguage(lang string) Option {
	return func(o *Options) { o.AcceptLanguage = lang }
}

// WithProxy routes every request through host:port using the absolute-URI
// request-line form instead of connecting to the origin directly.
func WithProxy(host string, port int) Option {
	return func(o *Options) { o.ProxyHost = host; o.ProxyPort = port }
}

func defaultOptions() Options {
	return Options{
		UserAgent: "ioblock-httpstream/1.0",
		Accept:    "*/*",
	}
}

func (o Options) usingProxy() bool { return o.ProxyHost != "" }
