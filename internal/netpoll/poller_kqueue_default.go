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

//go:build darwin || dragonfly || freebsd || netbsd || openbsd
// +build darwin dragonfly freebsd netbsd openbsd

package netpoll

import (
	"golang.org/x/sys/unix"

	"github.com/panjf2000/poller/pkg/logging"
)

// kqueuePoller is the kqueue backend. Filters are level-triggered
// (no EV_CLEAR) and a file-descriptor owns one filter per direction,
// so a wait may report the same file-descriptor twice.
type kqueuePoller struct {
	fd     int
	el     *eventList
	logger logging.Logger
}

func openKqueue(cfg Config) (*kqueuePoller, error) {
	cfg = cfg.normalize()
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, newBackendError("create", "kqueue", err)
	}
	unix.CloseOnExec(fd)
	return &kqueuePoller{
		fd:     fd,
		el:     newEventList(cfg.EventsCap, cfg.MaxEventsCap),
		logger: cfg.Logger,
	}, nil
}

func (p *kqueuePoller) Name() string {
	return "kqueue"
}

// Close closes the poller.
func (p *kqueuePoller) Close() error {
	return newBackendError("close", "close", unix.Close(p.fd))
}

func (p *kqueuePoller) kevent(fd, filter, flags int) error {
	var evs [1]unix.Kevent_t
	unix.SetKevent(&evs[0], fd, filter, flags)
	for {
		_, err := unix.Kevent(p.fd, evs[:], nil, nil)
		if err != unix.EINTR {
			return err
		}
		// All changes contained in the changelist should have been applied
		// before returning EINTR. But let's be skeptical and retry it anyway.
	}
}

// apply submits the changes one by one, if one of them fails the ones
// already applied are reverted so the registration is left as it was.
func (p *kqueuePoller) apply(fd int, changes []change) error {
	for i, c := range changes {
		err := p.kevent(fd, c.filter, c.flags)
		if err == nil {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if uerr := p.kevent(fd, changes[j].filter, changes[j].undo); uerr != nil {
				p.logger.Warnf("failed to revert filter %d of fd=%d: %v", changes[j].filter, fd, uerr)
			}
		}
		return err
	}
	return nil
}

// Register attaches the filters of the given interest to the file-descriptor.
func (p *kqueuePoller) Register(fd int, interest Interest) (Token, error) {
	tok := kqueueToken(interest)
	if err := p.apply(fd, diffTokens(0, tok)); err != nil {
		return 0, newBackendError("add", "kevent add", err)
	}
	return tok, nil
}

// Reregister attaches, detaches, enables or disables filters to match the new interest.
func (p *kqueuePoller) Reregister(fd int, interest Interest, prev Token) (Token, error) {
	tok := kqueueToken(interest)
	if err := p.apply(fd, diffTokens(prev, tok)); err != nil {
		return 0, newBackendError("modify", "kevent mod", err)
	}
	return tok, nil
}

// Deregister detaches every filter of the file-descriptor.
func (p *kqueuePoller) Deregister(fd int, tok Token) error {
	return newBackendError("remove", "kevent delete", p.apply(fd, diffTokens(tok, 0)))
}

// Wait blocks the current goroutine, waiting for readiness events.
func (p *kqueuePoller) Wait(dst []Ready, msec int) ([]Ready, error) {
	b := newBudget(msec)
	for {
		var tsp *unix.Timespec
		if msec >= 0 {
			ts := unix.NsecToTimespec(int64(msec) * 1e6)
			tsp = &ts
		}
		n, err := unix.Kevent(p.fd, nil, p.el.events, tsp)
		if err == unix.EINTR {
			var ok bool
			if msec, ok = b.remaining(); !ok {
				return dst, nil
			}
			continue
		}
		if err != nil {
			p.logger.Errorf("error occurs in kqueue: %v", err)
			return dst, newBackendError("wait", "kevent wait", err)
		}
		for i := 0; i < n; i++ {
			ev := &p.el.events[i]
			dst = append(dst, Ready{FD: int(ev.Ident), Events: translateKevent(ev)})
		}
		p.el.adjust(n)
		return dst, nil
	}
}
