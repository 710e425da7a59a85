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

//go:build linux
// +build linux

package netpoll

import (
	"golang.org/x/sys/unix"

	"github.com/panjf2000/poller/pkg/logging"
)

// oneShotPoller is the epoll backend that registers every file-descriptor
// with EPOLLONESHOT. The kernel disarms a registration after reporting it once,
// Wait re-arms it with the same mask before returning so that the interest
// sticks until the caller changes it.
//
// The native mask travels in the data word of the epoll event (Pad),
// which saves a lookup when re-arming.
type oneShotPoller struct {
	fd     int // epoll fd
	el     *eventList
	logger logging.Logger
}

func openEpollOneShot(cfg Config) (*oneShotPoller, error) {
	cfg = cfg.normalize()
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, newBackendError("create", "epoll_create1", err)
	}
	return &oneShotPoller{
		fd:     fd,
		el:     newEventList(cfg.EventsCap, cfg.MaxEventsCap),
		logger: cfg.Logger,
	}, nil
}

func (p *oneShotPoller) Name() string {
	return "epoll-oneshot"
}

// Close closes the poller.
func (p *oneShotPoller) Close() error {
	return newBackendError("close", "close", unix.Close(p.fd))
}

func (p *oneShotPoller) ctl(op, fd int, ev uint32) error {
	return unix.EpollCtl(p.fd, op, fd, &unix.EpollEvent{Events: ev, Fd: int32(fd), Pad: int32(ev)})
}

// Register registers the given file-descriptor as a one-shot source.
func (p *oneShotPoller) Register(fd int, interest Interest) (Token, error) {
	ev := epollMask(interest) | unix.EPOLLONESHOT
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return 0, newBackendError("add", "epoll_ctl add", err)
	}
	return Token(ev), nil
}

// Reregister replaces the interest, which also re-arms a disarmed registration.
func (p *oneShotPoller) Reregister(fd int, interest Interest, _ Token) (Token, error) {
	ev := epollMask(interest) | unix.EPOLLONESHOT
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return 0, newBackendError("modify", "epoll_ctl mod", err)
	}
	return Token(ev), nil
}

// Deregister removes the given file-descriptor from the poller.
func (p *oneShotPoller) Deregister(fd int, _ Token) error {
	return newBackendError("remove", "epoll_ctl del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// Wait blocks the current goroutine, waiting for readiness events,
// and re-arms every source it reports.
func (p *oneShotPoller) Wait(dst []Ready, msec int) ([]Ready, error) {
	b := newBudget(msec)
	for {
		n, err := unix.EpollWait(p.fd, p.el.events, msec)
		if err == unix.EINTR {
			var ok bool
			if msec, ok = b.remaining(); !ok {
				return dst, nil
			}
			continue
		}
		if err != nil {
			p.logger.Errorf("error occurs in epoll: %v", err)
			return dst, newBackendError("wait", "epoll_wait", err)
		}
		for i := 0; i < n; i++ {
			ev := &p.el.events[i]
			fd := int(ev.Fd)
			events := translateEpoll(ev.Events)
			if err := p.ctl(unix.EPOLL_CTL_MOD, fd, uint32(ev.Pad)); err != nil {
				// The source can't report again, hand the failure to the caller.
				p.logger.Warnf("failed to re-arm fd=%d: %v", fd, err)
				events |= EventError
			}
			dst = append(dst, Ready{FD: fd, Events: events})
		}
		p.el.adjust(n)
		return dst, nil
	}
}
