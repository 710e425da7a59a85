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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd
// +build darwin dragonfly freebsd linux netbsd openbsd

package netpoll

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/poller/pkg/errors"
)

type opener struct {
	name string
	open func(Config) (Backend, error)
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	for _, o := range testOpeners() {
		o := o
		t.Run(o.name, func(t *testing.T) {
			b, err := o.open(Config{EventsCap: 4, MaxEventsCap: 16})
			require.NoError(t, err)
			defer func() { assert.NoError(t, b.Close()) }()
			assert.Equal(t, o.name, b.Name())
			fn(t, b)
		})
	}
}

func TestOpenBackend(t *testing.T) {
	b, err := OpenBackend(Config{})
	require.NoError(t, err)
	assert.NotEmpty(t, b.Name())
	assert.NoError(t, b.Close())
}

func TestBackendReadableIsSticky(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		a, peer := socketPair(t)
		tok, err := b.Register(a, InterestRead)
		require.NoError(t, err)

		ready, err := b.Wait(nil, 0)
		require.NoError(t, err)
		assert.Empty(t, ready)

		_, err = unix.Write(peer, []byte{'x'})
		require.NoError(t, err)

		// The byte is never consumed, every wait has to report it again,
		// including on backends that disarm a source after each notification.
		for i := 0; i < 5; i++ {
			ready, err = b.Wait(ready[:0], 1000)
			require.NoError(t, err)
			require.Len(t, ready, 1, "round %d", i)
			assert.Equal(t, Ready{FD: a, Events: EventRead}, ready[0])
		}

		buf := make([]byte, 1)
		_, err = unix.Read(a, buf)
		require.NoError(t, err)
		ready, err = b.Wait(ready[:0], 0)
		require.NoError(t, err)
		assert.Empty(t, ready)

		require.NoError(t, b.Deregister(a, tok))
	})
}

func TestBackendWritable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		a, _ := socketPair(t)
		tok, err := b.Register(a, InterestWrite)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			ready, err := b.Wait(nil, 0)
			require.NoError(t, err)
			require.Len(t, ready, 1)
			assert.Equal(t, a, ready[0].FD)
			assert.True(t, ready[0].Events.HasWrite())
			assert.False(t, ready[0].Events.HasRead())
		}

		require.NoError(t, b.Deregister(a, tok))
		ready, err := b.Wait(nil, 0)
		require.NoError(t, err)
		assert.Empty(t, ready)
	})
}

func TestBackendReregister(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		a, peer := socketPair(t)
		tok, err := b.Register(a, InterestRead.WithWrite())
		require.NoError(t, err)

		ready, err := b.Wait(nil, 0)
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.True(t, ready[0].Events.HasWrite())

		tok, err = b.Reregister(a, InterestRead, tok)
		require.NoError(t, err)
		ready, err = b.Wait(nil, 0)
		require.NoError(t, err)
		assert.Empty(t, ready)

		_, err = unix.Write(peer, []byte{'x'})
		require.NoError(t, err)
		ready, err = b.Wait(nil, 1000)
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, EventRead, ready[0].Events)

		// No interest at all: pending data must not be reported any more.
		tok, err = b.Reregister(a, Interest(0), tok)
		require.NoError(t, err)
		ready, err = b.Wait(nil, 0)
		require.NoError(t, err)
		assert.Empty(t, ready)

		tok, err = b.Reregister(a, InterestWrite, tok)
		require.NoError(t, err)
		ready, err = b.Wait(nil, 0)
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, EventWrite, ready[0].Events)

		require.NoError(t, b.Deregister(a, tok))
	})
}

func TestBackendHangUp(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		a, peer := socketPair(t)
		_, err := b.Register(a, InterestRead)
		require.NoError(t, err)

		require.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))
		ready, err := b.Wait(nil, 1000)
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, a, ready[0].FD)
		assert.True(t, ready[0].Events.HasRead(), "EOF is readable, got %s", ready[0].Events)
	})
}

func TestBackendDeregisterUnknown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		a, _ := socketPair(t)
		// Any token that names a filter, backends must find nothing to remove.
		err := b.Deregister(a, Token(1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errorx.ErrNotRegistered), "got %v", err)

		var be *errorx.BackendError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "remove", be.Op)
	})
}

func TestBackendRegisterInvalid(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		_, err := b.Register(-1, InterestRead)
		require.Error(t, err)
		var be *errorx.BackendError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "add", be.Op)
	})
}

func TestBackendWaitTimeout(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		start := time.Now()
		ready, err := b.Wait(nil, 0)
		require.NoError(t, err)
		assert.Empty(t, ready)
		assert.Less(t, time.Since(start), 100*time.Millisecond)

		start = time.Now()
		ready, err = b.Wait(nil, 60)
		elapsed := time.Since(start)
		require.NoError(t, err)
		assert.Empty(t, ready)
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
		assert.Less(t, elapsed, 2*time.Second)
	})
}

func TestBackendEventListGrows(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		const n = 40
		fds := make([]int, 0, n)
		for i := 0; i < n; i++ {
			a, _ := socketPair(t)
			_, err := b.Register(a, InterestWrite)
			require.NoError(t, err)
			fds = append(fds, a)
		}

		// The event list starts with 4 slots, keep waiting until every
		// source has been seen at least once.
		seen := make(map[int]bool, n)
		for round := 0; round < 10 && len(seen) < n; round++ {
			ready, err := b.Wait(nil, 0)
			require.NoError(t, err)
			for _, r := range ready {
				assert.True(t, r.Events.HasWrite())
				seen[r.FD] = true
			}
		}
		for _, fd := range fds {
			assert.True(t, seen[fd], "fd=%d never reported", fd)
		}
	})
}
