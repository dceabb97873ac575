// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iosystem

import (
	"code.hybscloud.com/ioblock/golog"
	"code.hybscloud.com/ioblock/jobqueue"
)

// Medium tags which resource kind an IOSystem factors BlockIOs over.
type Medium uint8

const (
	MediumMemory Medium = iota
	MediumFile
	MediumNetwork
)

func (m Medium) String() string {
	switch m {
	case MediumMemory:
		return "memory"
	case MediumFile:
		return "file"
	case MediumNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Options configures an IOSystem. Defaults follow per medium.
type Options struct {
	BlockSize int
	Alignment int
	PoolSize  int
	JobQueue  *jobqueue.JobQueue
	Logger    *golog.Logger
}

type Option func(*Options)

func WithBlockSize(n int) Option   { return func(o *Options) { o.BlockSize = n } }
func WithAlignment(n int) Option   { return func(o *Options) { o.Alignment = n } }
func WithPoolSize(n int) Option    { return func(o *Options) { o.PoolSize = n } }
func WithJobQueue(q *jobqueue.JobQueue) Option {
	return func(o *Options) { o.JobQueue = q }
}
func WithLogger(l *golog.Logger) Option { return func(o *Options) { o.Logger = l } }

func defaultsFor(medium Medium) Options {
	switch medium {
	case MediumFile:
		return Options{BlockSize: 4096, Alignment: 4096, PoolSize: 64}
	case MediumNetwork:
		return Options{BlockSize: 2048, Alignment: 0, PoolSize: 64}
	default: // MediumMemory
		return Options{BlockSize: 1024, Alignment: 0, PoolSize: 64}
	}
}

// OpenOptions are the exact option set names for open_block_io.
type OpenOptions struct {
	ReadAccess       bool
	WriteAccess      bool
	Resizable        bool
	CreateNewStore   bool
	UseSynchronousIO bool
}
