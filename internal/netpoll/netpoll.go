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

/*
Package netpoll implements the platform-specific readiness backends.

The underlying facility of event notification is OS-specific:
  - epoll on Linux, level-triggered by default, one-shot with the `poll_oneshot` build tag
  - kqueue on *BSD/Darwin
  - poll(2) on the remaining unix systems, or anywhere with the `poll_posix` build tag

Every backend satisfies the Backend interface and keeps the same contract:
an interest stays armed until it is changed or removed, error and hang-up
conditions are reported whether or not they were asked for, and an interrupted
wait is resumed with whatever is left of the timeout.
*/
package netpoll

import (
	"os"

	errorx "github.com/panjf2000/poller/pkg/errors"
	"github.com/panjf2000/poller/pkg/logging"
)

// Token is the backend-private bookkeeping value of a registration.
// It is returned by Register and Reregister and must be handed back
// on the next Reregister or Deregister of the same file descriptor.
type Token uint32

// Ready is a translated readiness notification for one file descriptor.
type Ready struct {
	FD     int
	Events Events
}

// Backend is the contract every polling mechanism implements.
type Backend interface {
	// Register adds fd to the kernel object with the given interest.
	Register(fd int, interest Interest) (Token, error)
	// Reregister replaces the interest of fd, prev is the token of the current registration.
	// On failure the previous registration is left in place.
	Reregister(fd int, interest Interest, prev Token) (Token, error)
	// Deregister removes fd from the kernel object.
	Deregister(fd int, tok Token) error
	// Wait blocks for up to msec milliseconds (0 polls, negative blocks forever)
	// and appends the ready file descriptors to dst.
	Wait(dst []Ready, msec int) ([]Ready, error)
	// Close releases the kernel object.
	Close() error
	// Name tells which mechanism backs this instance.
	Name() string
}

// Config tunes a backend.
type Config struct {
	// EventsCap is the initial capacity of the native event list.
	EventsCap int
	// MaxEventsCap caps the growth of the native event list.
	MaxEventsCap int
	// Logger receives the diagnostics of the backend.
	Logger logging.Logger
}

func (c Config) normalize() Config {
	if c.EventsCap <= 0 {
		c.EventsCap = InitPollEventsCap
	}
	if c.MaxEventsCap <= 0 {
		c.MaxEventsCap = MaxPollEventsCap
	}
	if c.MaxEventsCap < c.EventsCap {
		c.MaxEventsCap = c.EventsCap
	}
	if c.Logger == nil {
		c.Logger = logging.GetDefaultLogger()
	}
	return c
}

// newBackendError wraps the failure of a native call, nil stays nil.
func newBackendError(op, syscall string, err error) error {
	if err == nil {
		return nil
	}
	return &errorx.BackendError{Op: op, Err: os.NewSyscallError(syscall, err)}
}
