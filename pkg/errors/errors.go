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

// Package errors defines common errors for poller.
package errors

import (
	"errors"
	"syscall"
)

var (
	// ErrAlreadyRegistered occurs when adding a source that is already registered.
	ErrAlreadyRegistered = errors.New("poller: source is already registered")
	// ErrNotRegistered occurs when modifying or removing a source that is not registered.
	ErrNotRegistered = errors.New("poller: source is not registered")
	// ErrClosed occurs when operating on a poller that has been closed.
	ErrClosed = errors.New("poller: poller is closed")
	// ErrResourceExhausted occurs when the kernel runs out of polling objects,
	// file descriptors or registration slots.
	ErrResourceExhausted = errors.New("poller: kernel resource limit reached")
	// ErrUnsupportedPlatform occurs when no polling mechanism is available on the current platform.
	ErrUnsupportedPlatform = errors.New("poller: unsupported platform")
)

// BackendError is returned when a native polling call fails.
// Err is usually an *os.SyscallError carrying the errno.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return "poller: backend " + e.Op + ": " + e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Errno returns the native error code, or 0 if the failure didn't come from a syscall.
func (e *BackendError) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

// Is classifies native error codes into the sentinel errors of this package,
// so that errors.Is(err, ErrResourceExhausted) holds for EMFILE and friends.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrResourceExhausted:
		switch e.Errno() {
		case syscall.EMFILE, syscall.ENFILE, syscall.ENOMEM, syscall.ENOSPC:
			return true
		}
	case ErrNotRegistered:
		return e.Errno() == syscall.ENOENT
	case ErrAlreadyRegistered:
		return e.Errno() == syscall.EEXIST
	}
	return false
}
