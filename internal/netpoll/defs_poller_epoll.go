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

import "golang.org/x/sys/unix"

const (
	// InitPollEventsCap represents the initial capacity of poller event-list.
	InitPollEventsCap = 128
	// MaxPollEventsCap is the maximum limitation of events that the poller can process.
	MaxPollEventsCap = 1024
	// MinPollEventsCap is the minimum limitation of events that the poller can process.
	MinPollEventsCap = 32
	// ReadEvents represents readable events that are polled by epoll.
	ReadEvents = unix.EPOLLIN | unix.EPOLLPRI
	// WriteEvents represents writeable events that are polled by epoll.
	WriteEvents = unix.EPOLLOUT
	// ErrEvents represents exceptional events that occurred.
	ErrEvents = unix.EPOLLERR
	// HupEvents represents hang-up events, EPOLLRDHUP has to be requested explicitly.
	HupEvents = unix.EPOLLHUP | unix.EPOLLRDHUP
)

// epollMask translates an interest into the native event mask.
// EPOLLERR and EPOLLHUP are always reported by the kernel.
func epollMask(interest Interest) uint32 {
	ev := uint32(unix.EPOLLRDHUP)
	if interest.IsReadable() {
		ev |= ReadEvents
	}
	if interest.IsWritable() {
		ev |= WriteEvents
	}
	return ev
}

// translateEpoll maps the native ready flags to the portable event set.
func translateEpoll(ev uint32) (events Events) {
	if ev&ReadEvents != 0 {
		events |= EventRead
	}
	if ev&WriteEvents != 0 {
		events |= EventWrite
	}
	if ev&ErrEvents != 0 {
		events |= EventError
	}
	if ev&HupEvents != 0 {
		events |= EventHangUp
	}
	return
}

type eventList struct {
	size     int
	min, max int
	events   []unix.EpollEvent
}

func newEventList(size, max int) *eventList {
	min := MinPollEventsCap
	if size < min {
		min = size
	}
	return &eventList{size, min, max, make([]unix.EpollEvent, size)}
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
		el.events = make([]unix.EpollEvent, newSize)
	}
}

func (el *eventList) shrink() {
	if newSize := el.size >> 1; newSize >= el.min {
		el.size = newSize
		el.events = make([]unix.EpollEvent, newSize)
	}
}
