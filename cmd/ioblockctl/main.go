// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command ioblockctl exercises the ioblock stack end-to-end from the
// shell: fetching or posting an HTTP document over httpstream, and
// reading a local file through a plain AsyncIOStream.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	_ "go.uber.org/automaxprocs"

	"code.hybscloud.com/ioblock/golog"
	"code.hybscloud.com/ioblock/httpstream"
	"code.hybscloud.com/ioblock/iosystem"
	"code.hybscloud.com/ioblock/stream"
)

// automaxprocs' init has already clamped runtime.GOMAXPROCS(0) to the
// container's CPU quota by the time main runs; jobqueue.New (invoked
// indirectly by every iosystem.New below) sizes its worker pool from
// that value.

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	log := golog.Default()
	log.SetLevel(golog.Warn)

	var err error
	switch os.Args[1] {
	case "get":
		err = runGet(os.Args[2:], log)
	case "post":
		err = runPost(os.Args[2:], log)
	case "cat":
		err = runCat(os.Args[2:], log)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ioblockctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ioblockctl <get|post|cat> [flags] <url|path>")
}

// docResult collects the single completion callback an httpstream.Sink
// fires, whichever of the two it is.
type docResult struct {
	done chan struct{}
	err  error
	h    *httpstream.HttpStream
}

func newDocResult() *docResult { return &docResult{done: make(chan struct{}, 1)} }

func (r *docResult) OnReadHTTPDocument(err error, h *httpstream.HttpStream) {
	r.err, r.h = err, h
	r.done <- struct{}{}
}

func (r *docResult) OnWriteHTTPDocument(err error, h *httpstream.HttpStream) {
	r.OnReadHTTPDocument(err, h)
}

func (r *docResult) wait(timeout time.Duration) error {
	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s waiting for response", timeout)
	}
}

func runGet(args []string, log *golog.Logger) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	timeout := fs.Duration("timeout", 10*time.Second, "overall request timeout")
	ua := fs.String("user-agent", "", "override the User-Agent header")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("get requires exactly one URL argument")
	}

	var opts []httpstream.Option
	if *ua != "" {
		opts = append(opts, httpstream.WithUserAgent(*ua))
	}

	sys := iosystem.New(iosystem.MediumNetwork, iosystem.WithLogger(log))
	result := newDocResult()
	if _, err := httpstream.ReadHTTPDocument(sys, fs.Arg(0), result, opts...); err != nil {
		return err
	}
	if err := result.wait(*timeout); err != nil {
		return err
	}
	return printDocument(result)
}

func runPost(args []string, log *golog.Logger) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	timeout := fs.Duration("timeout", 10*time.Second, "overall request timeout")
	typ := fs.String("type", "application", "Content-Type major type")
	subtype := fs.String("subtype", "json", "Content-Type subtype")
	bodyFile := fs.String("body-file", "", "file to read the POST body from (default: stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("post requires exactly one URL argument")
	}

	var body []byte
	var err error
	if *bodyFile != "" {
		body, err = os.ReadFile(*bodyFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}

	sys := iosystem.New(iosystem.MediumNetwork, iosystem.WithLogger(log))
	result := newDocResult()
	if _, err := httpstream.SendHTTPPost(sys, fs.Arg(0), body, *typ, *subtype, result); err != nil {
		return err
	}
	if err := result.wait(*timeout); err != nil {
		return err
	}
	return printDocument(result)
}

func printDocument(r *docResult) error {
	if r.err != nil {
		return r.err
	}
	h := r.h
	fmt.Fprintf(os.Stdout, "HTTP %d\n", h.StatusCode())

	start, end := h.BodyRange()
	body := make([]byte, end-start)
	h.Stream().SetPosition(start)
	if len(body) > 0 {
		if _, err := h.Stream().Read(body); err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
	}
	_, err := os.Stdout.Write(body)
	return err
}

// noopSink satisfies stream.Sink for a reader that drives its own reads
// synchronously via AsyncIOStream.Read rather than ListenForMoreBytes.
type noopSink struct{}

func (noopSink) OnReadyToRead(error, int64)       {}
func (noopSink) OnFlush(error)                    {}
func (noopSink) OnOpen(error, *stream.AsyncIOStream) {}
func (noopSink) OnStreamDisconnect(error)         {}

func runCat(args []string, log *golog.Logger) error {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("cat requires exactly one file path argument")
	}

	sys := iosystem.New(iosystem.MediumFile, iosystem.WithLogger(log))
	s, err := stream.Open(sys, "file://"+fs.Arg(0), iosystem.OpenOptions{
		ReadAccess:       true,
		UseSynchronousIO: true,
	}, noopSink{})
	if err != nil {
		return err
	}
	defer s.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == stream.ErrEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
