// Copyright (c) 2024 The Gnet Authors. All rights reserved.
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

//go:build aix || darwin || dragonfly || freebsd || illumos || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd illumos linux netbsd openbsd solaris

package netpoll

import (
	"golang.org/x/sys/unix"

	"github.com/panjf2000/poller/pkg/logging"
)

const (
	pollReadEvents  = unix.POLLIN | unix.POLLPRI
	pollWriteEvents = unix.POLLOUT
	pollErrEvents   = unix.POLLERR | unix.POLLNVAL
	pollHupEvents   = unix.POLLHUP
)

func pollMask(interest Interest) int16 {
	var ev int16
	if interest.IsReadable() {
		ev |= pollReadEvents
	}
	if interest.IsWritable() {
		ev |= pollWriteEvents
	}
	return ev
}

// translatePoll maps the returned revents to the portable event set.
func translatePoll(revents int16) (events Events) {
	if revents&pollReadEvents != 0 {
		events |= EventRead
	}
	if revents&pollWriteEvents != 0 {
		events |= EventWrite
	}
	if revents&pollErrEvents != 0 {
		events |= EventError
	}
	if revents&pollHupEvents != 0 {
		events |= EventHangUp
	}
	return
}

// pollPoller is the poll(2) backend. There is no kernel object to own,
// the interest set lives in a pollfd array handed to every poll(2) call.
type pollPoller struct {
	fds    []unix.PollFd
	index  map[int]int // fd -> position in fds
	logger logging.Logger
}

func openPoll(cfg Config) (*pollPoller, error) {
	cfg = cfg.normalize()
	return &pollPoller{
		fds:    make([]unix.PollFd, 0, cfg.EventsCap),
		index:  make(map[int]int, cfg.EventsCap),
		logger: cfg.Logger,
	}, nil
}

func (p *pollPoller) Name() string {
	return "poll"
}

// Close drops the interest set.
func (p *pollPoller) Close() error {
	p.fds, p.index = nil, nil
	return nil
}

// Register appends the file-descriptor to the pollfd array.
func (p *pollPoller) Register(fd int, interest Interest) (Token, error) {
	if fd < 0 {
		return 0, newBackendError("add", "poll", unix.EBADF)
	}
	if _, ok := p.index[fd]; ok {
		return 0, newBackendError("add", "poll", unix.EEXIST)
	}
	ev := pollMask(interest)
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: ev})
	return Token(uint16(ev)), nil
}

// Reregister replaces the requested events of the file-descriptor.
func (p *pollPoller) Reregister(fd int, interest Interest, _ Token) (Token, error) {
	i, ok := p.index[fd]
	if !ok {
		return 0, newBackendError("modify", "poll", unix.ENOENT)
	}
	ev := pollMask(interest)
	p.fds[i].Events = ev
	return Token(uint16(ev)), nil
}

// Deregister removes the file-descriptor by moving the last entry into its slot.
func (p *pollPoller) Deregister(fd int, _ Token) error {
	i, ok := p.index[fd]
	if !ok {
		return newBackendError("remove", "poll", unix.ENOENT)
	}
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

// Wait blocks the current goroutine in poll(2), waiting for readiness events.
func (p *pollPoller) Wait(dst []Ready, msec int) ([]Ready, error) {
	b := newBudget(msec)
	for {
		n, err := unix.Poll(p.fds, msec)
		if err == unix.EINTR {
			var ok bool
			if msec, ok = b.remaining(); !ok {
				return dst, nil
			}
			continue
		}
		if err != nil {
			p.logger.Errorf("error occurs in poll: %v", err)
			return dst, newBackendError("wait", "poll", err)
		}
		for i := 0; i < len(p.fds) && n > 0; i++ {
			pfd := &p.fds[i]
			if pfd.Revents == 0 {
				continue
			}
			n--
			dst = append(dst, Ready{FD: int(pfd.Fd), Events: translatePoll(pfd.Revents)})
			pfd.Revents = 0
		}
		return dst, nil
	}
}
