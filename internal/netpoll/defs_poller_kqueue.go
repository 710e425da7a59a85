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

import "golang.org/x/sys/unix"

const (
	// InitPollEventsCap represents the initial capacity of poller event-list.
	InitPollEventsCap = 64
	// MaxPollEventsCap is the maximum limitation of events that the poller can process.
	MaxPollEventsCap = 512
	// MinPollEventsCap is the minimum limitation of events that the poller can process.
	MinPollEventsCap = 16
)

// Tokens of the kqueue backend record which filters are attached to a file-descriptor.
const (
	// tokRead means EVFILT_READ is attached and enabled.
	tokRead Token = 1 << iota
	// tokWrite means EVFILT_WRITE is attached and enabled.
	tokWrite
	// tokParked means EVFILT_READ is attached but disabled, it keeps a
	// registration without interest alive in the kernel.
	tokParked
)

func kqueueToken(interest Interest) Token {
	if interest.IsNone() {
		return tokParked
	}
	var tok Token
	if interest.IsReadable() {
		tok |= tokRead
	}
	if interest.IsWritable() {
		tok |= tokWrite
	}
	return tok
}

// change is one filter update together with the update that reverts it.
type change struct {
	filter int
	flags  int
	undo   int
}

func enableFlag(tok Token) int {
	if tok&tokParked != 0 {
		return unix.EV_DISABLE
	}
	return unix.EV_ENABLE
}

// diffTokens computes the filter updates that turn the prev registration into next.
func diffTokens(prev, next Token) (changes []change) {
	prevRead, nextRead := prev&(tokRead|tokParked) != 0, next&(tokRead|tokParked) != 0
	switch {
	case !prevRead && nextRead:
		changes = append(changes, change{unix.EVFILT_READ, unix.EV_ADD | enableFlag(next), unix.EV_DELETE})
	case prevRead && !nextRead:
		changes = append(changes, change{unix.EVFILT_READ, unix.EV_DELETE, unix.EV_ADD | enableFlag(prev)})
	case prevRead && nextRead && prev&tokParked != next&tokParked:
		changes = append(changes, change{unix.EVFILT_READ, enableFlag(next), enableFlag(prev)})
	}

	prevWrite, nextWrite := prev&tokWrite != 0, next&tokWrite != 0
	switch {
	case !prevWrite && nextWrite:
		changes = append(changes, change{unix.EVFILT_WRITE, unix.EV_ADD | unix.EV_ENABLE, unix.EV_DELETE})
	case prevWrite && !nextWrite:
		changes = append(changes, change{unix.EVFILT_WRITE, unix.EV_DELETE, unix.EV_ADD | unix.EV_ENABLE})
	}
	return
}

// translateKevent maps one returned kevent to the portable event set.
func translateKevent(ev *unix.Kevent_t) (events Events) {
	switch int(ev.Filter) {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if ev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if ev.Flags&unix.EV_EOF != 0 {
		events |= EventHangUp
		// Fflags carries the pending socket error, if any.
		if ev.Fflags != 0 {
			events |= EventError
		}
	}
	return
}

type eventList struct {
	size     int
	min, max int
	events   []unix.Kevent_t
}

func newEventList(size, max int) *eventList {
	min := MinPollEventsCap
	if size < min {
		min = size
	}
	return &eventList{size, min, max, make([]unix.Kevent_t, size)}
}

// adjust resizes the list after a wait that reported n events.
func (el *eventList) adjust(n int) {
	if n == el.size {
		el.expand()
	} else if n < el.size>>1 {
		el.shrink()
	}
}

func (el *eventList) expand() {
	if newSize := el.size << 1; newSize <= el.max {
		el.size = newSize
		el.events = make([]unix.Kevent_t, newSize)
	}
}

func (el *eventList) shrink() {
	if newSize := el.size >> 1; newSize >= el.min {
		el.size = newSize
		el.events = make([]unix.Kevent_t, newSize)
	}
}
