// Copyright (c) 2019 The Gnet Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package poller

import (
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/panjf2000/poller/internal/netpoll"
	"github.com/panjf2000/poller/internal/registry"
	errorx "github.com/panjf2000/poller/pkg/errors"
	"github.com/panjf2000/poller/pkg/logging"
)

// Interest is the set of readiness kinds a source is registered for.
type Interest = netpoll.Interest

// Events is the set of readiness kinds observed on a source.
type Events = netpoll.Events

const (
	// Readable asks to be notified when a source has data to read.
	Readable = netpoll.InterestRead
	// Writable asks to be notified when a source can accept writes.
	Writable = netpoll.InterestWrite
)

const (
	// EventRead tells that the source can be read without blocking.
	EventRead = netpoll.EventRead
	// EventWrite tells that the source can be written without blocking.
	EventWrite = netpoll.EventWrite
	// EventError tells that an error condition is pending on the source.
	EventError = netpoll.EventError
	// EventHangUp tells that the peer has hung up.
	EventHangUp = netpoll.EventHangUp
)

// Infinite makes Pull block until at least one source is ready.
const Infinite time.Duration = -1

// NewInterest returns an empty interest, extend it with WithRead and WithWrite.
func NewInterest() Interest {
	return Interest(0)
}

// Readiness reports what happened to one registered source during a Pull.
type Readiness struct {
	FD      int
	Events  Events
	Context any
}

// Poller watches a set of file-descriptors for readiness.
//
// A Poller is not safe for concurrent use, it is meant to be driven by
// a single goroutine that alternates between Pull and the mutating methods.
type Poller struct {
	backend netpoll.Backend
	table   *registry.Table
	logger  logging.Logger
	flush   logging.Flusher
	ready   []netpoll.Ready
	closed  bool
}

// Open creates a poller backed by the mechanism selected for the current platform.
func Open(opts ...Option) (p *Poller, err error) {
	options := loadOptions(opts...)

	logger := options.Logger
	var flush logging.Flusher
	if logger == nil {
		if options.LogPath != "" {
			if logger, flush, err = logging.CreateLoggerAsLocalFile(options.LogPath, options.LogLevel); err != nil {
				return nil, err
			}
		} else {
			logger = logging.GetDefaultLogger()
		}
	}

	b, err := netpoll.OpenBackend(netpoll.Config{
		EventsCap:    options.EventsCap,
		MaxEventsCap: options.MaxEventsCap,
		Logger:       logger,
	})
	if err != nil {
		if flush != nil {
			err = multierr.Append(err, flush())
		}
		return nil, err
	}

	p = newPoller(b, logger)
	p.flush = flush
	logger.Debugf("poller opened on %s backend", b.Name())
	return p, nil
}

func newPoller(b netpoll.Backend, logger logging.Logger) *Poller {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Poller{
		backend: b,
		table:   registry.New(),
		logger:  logger,
	}
}

// Add registers fd with the given interest.
func (p *Poller) Add(fd int, interest Interest) error {
	return p.AddContext(fd, interest, nil)
}

// AddContext registers fd with the given interest and attaches ctx to it,
// ctx is handed back on every Readiness of fd.
func (p *Poller) AddContext(fd int, interest Interest, ctx any) error {
	if p.closed {
		return errorx.ErrClosed
	}
	reg := registry.Registration{FD: fd, Interest: interest, Context: ctx}
	if err := p.table.Insert(reg); err != nil {
		return err
	}
	tok, err := p.backend.Register(fd, interest)
	if err != nil {
		if _, rerr := p.table.Remove(fd); rerr != nil {
			p.logger.Warnf("failed to roll back the registration of fd=%d: %v", fd, rerr)
		}
		p.logger.Warnf("failed to register fd=%d with %s, rolled back: %v", fd, interest, err)
		return err
	}
	reg.Token = tok
	if _, err = p.table.Update(reg); err != nil {
		// The table lost fd while the backend took it, undo the backend side.
		return multierr.Append(err, p.backend.Deregister(fd, tok))
	}
	return nil
}

// Modify replaces the interest of a registered fd, its context is kept.
func (p *Poller) Modify(fd int, interest Interest) error {
	if p.closed {
		return errorx.ErrClosed
	}
	prev, err := p.table.Lookup(fd)
	if err != nil {
		return err
	}
	next := prev
	next.Interest = interest
	if _, err = p.table.Update(next); err != nil {
		return err
	}
	tok, err := p.backend.Reregister(fd, interest, prev.Token)
	if err != nil {
		if _, rerr := p.table.Update(prev); rerr != nil {
			p.logger.Warnf("failed to roll back the interest of fd=%d: %v", fd, rerr)
		}
		p.logger.Warnf("failed to modify fd=%d to %s, kept %s: %v", fd, interest, prev.Interest, err)
		return err
	}
	next.Token = tok
	if _, err = p.table.Update(next); err != nil {
		return multierr.Append(err, p.backend.Deregister(fd, tok))
	}
	return nil
}

// Remove unregisters fd, the file-descriptor itself is left open.
func (p *Poller) Remove(fd int) error {
	if p.closed {
		return errorx.ErrClosed
	}
	reg, err := p.table.Lookup(fd)
	if err != nil {
		return err
	}
	if err = p.backend.Deregister(fd, reg.Token); err != nil {
		return err
	}
	_, err = p.table.Remove(fd)
	return err
}

// Pull waits up to timeout for registered sources to become ready and returns
// one Readiness per ready source. A zero timeout never blocks, a negative one
// blocks until something is ready. Running out of time is not an error,
// the returned slice is simply empty.
func (p *Poller) Pull(timeout time.Duration) ([]Readiness, error) {
	if p.closed {
		return nil, errorx.ErrClosed
	}
	ready, err := p.backend.Wait(p.ready[:0], durationToMsec(timeout))
	p.ready = ready[:0]
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		return nil, nil
	}

	var seen map[int]int
	if len(ready) > 1 {
		seen = make(map[int]int, len(ready))
	}
	out := make([]Readiness, 0, len(ready))
	for _, r := range ready {
		reg, err := p.table.Lookup(r.FD)
		if err != nil {
			p.logger.Debugf("dropped %s of unregistered fd=%d", r.Events, r.FD)
			continue
		}
		if i, ok := seen[r.FD]; ok {
			out[i].Events |= r.Events
			continue
		}
		if seen != nil {
			seen[r.FD] = len(out)
		}
		out = append(out, Readiness{FD: r.FD, Events: r.Events, Context: reg.Context})
	}
	return out, nil
}

// Close releases the kernel resources of the poller, registered
// file-descriptors are left open.
func (p *Poller) Close() error {
	if p.closed {
		return errorx.ErrClosed
	}
	p.closed = true
	err := p.backend.Close()
	if p.flush != nil {
		err = multierr.Append(err, p.flush())
	}
	p.ready = nil
	return err
}

// Len returns the number of registered file-descriptors.
// Like Interest, Range and Backend it keeps working after Close and then
// reports the registrations the poller held when it was closed.
func (p *Poller) Len() int {
	return p.table.Len()
}

// Interest returns the current interest of fd.
func (p *Poller) Interest(fd int) (Interest, bool) {
	reg, err := p.table.Lookup(fd)
	if err != nil {
		return 0, false
	}
	return reg.Interest, true
}

// Range calls fn for every registered file-descriptor, in no particular order,
// until fn returns false. fn may Remove the fd it is given but must not add any.
func (p *Poller) Range(fn func(fd int, interest Interest, ctx any) bool) {
	p.table.Range(func(r registry.Registration) bool {
		return fn(r.FD, r.Interest, r.Context)
	})
}

// Backend returns the name of the mechanism behind the poller, "epoll",
// "epoll-oneshot", "kqueue" or "poll". It is still valid after Close.
func (p *Poller) Backend() string {
	return p.backend.Name()
}

func durationToMsec(d time.Duration) int {
	switch {
	case d < 0:
		return -1
	case d == 0:
		return 0
	case d >= time.Duration(math.MaxInt32)*time.Millisecond:
		// Rounding up would overflow near math.MaxInt64.
		return math.MaxInt32
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
