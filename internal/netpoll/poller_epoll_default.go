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

//go:build linux
// +build linux

package netpoll

import (
	"golang.org/x/sys/unix"

	"github.com/panjf2000/poller/pkg/logging"
)

// epollPoller is the level-triggered epoll backend, a registration keeps
// reporting for as long as its condition holds.
type epollPoller struct {
	fd     int // epoll fd
	el     *eventList
	logger logging.Logger
}

func openEpoll(cfg Config) (*epollPoller, error) {
	cfg = cfg.normalize()
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, newBackendError("create", "epoll_create1", err)
	}
	return &epollPoller{
		fd:     fd,
		el:     newEventList(cfg.EventsCap, cfg.MaxEventsCap),
		logger: cfg.Logger,
	}, nil
}

func (p *epollPoller) Name() string {
	return "epoll"
}

// Close closes the poller.
func (p *epollPoller) Close() error {
	return newBackendError("close", "close", unix.Close(p.fd))
}

// Register registers the given file-descriptor with the translated interest.
func (p *epollPoller) Register(fd int, interest Interest) (Token, error) {
	ev := epollMask(interest)
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: ev})
	if err != nil {
		return 0, newBackendError("add", "epoll_ctl add", err)
	}
	return Token(ev), nil
}

// Reregister renews the interest of the given file-descriptor, EPOLL_CTL_MOD is atomic.
func (p *epollPoller) Reregister(fd int, interest Interest, _ Token) (Token, error) {
	ev := epollMask(interest)
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: ev})
	if err != nil {
		return 0, newBackendError("modify", "epoll_ctl mod", err)
	}
	return Token(ev), nil
}

// Deregister removes the given file-descriptor from the poller.
func (p *epollPoller) Deregister(fd int, _ Token) error {
	return newBackendError("remove", "epoll_ctl del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// Wait blocks the current goroutine, waiting for readiness events.
func (p *epollPoller) Wait(dst []Ready, msec int) ([]Ready, error) {
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
			dst = append(dst, Ready{FD: int(ev.Fd), Events: translateEpoll(ev.Events)})
		}
		p.el.adjust(n)
		return dst, nil
	}
}
