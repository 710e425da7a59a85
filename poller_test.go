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
	"errors"
	"math"
	"math/rand"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panjf2000/poller/internal/netpoll"
	errorx "github.com/panjf2000/poller/pkg/errors"
)

// fakeBackend records every call and fails on demand.
type fakeBackend struct {
	regs    map[int]netpoll.Interest
	tokens  map[int]netpoll.Token
	calls   []string
	next    netpoll.Token
	pending []netpoll.Ready
	msec    int
	closes  int

	failRegister   error
	failReregister error
	failDeregister error
	failWait       error

	// afterRegister runs once the backend has taken fd.
	afterRegister func(fd int)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		regs:   make(map[int]netpoll.Interest),
		tokens: make(map[int]netpoll.Token),
	}
}

func fakeErr(op string, errno syscall.Errno) error {
	return &errorx.BackendError{Op: op, Err: os.NewSyscallError("fake", errno)}
}

func (b *fakeBackend) Register(fd int, interest netpoll.Interest) (netpoll.Token, error) {
	b.calls = append(b.calls, "register")
	if b.failRegister != nil {
		return 0, b.failRegister
	}
	if _, ok := b.regs[fd]; ok {
		return 0, fakeErr("add", syscall.EEXIST)
	}
	b.next++
	b.regs[fd], b.tokens[fd] = interest, b.next
	if b.afterRegister != nil {
		b.afterRegister(fd)
	}
	return b.next, nil
}

func (b *fakeBackend) Reregister(fd int, interest netpoll.Interest, prev netpoll.Token) (netpoll.Token, error) {
	b.calls = append(b.calls, "reregister")
	if b.failReregister != nil {
		return 0, b.failReregister
	}
	if b.tokens[fd] != prev {
		return 0, fakeErr("modify", syscall.EINVAL)
	}
	b.next++
	b.regs[fd], b.tokens[fd] = interest, b.next
	if b.afterRegister != nil {
		b.afterRegister(fd)
	}
	return b.next, nil
}

func (b *fakeBackend) Deregister(fd int, tok netpoll.Token) error {
	b.calls = append(b.calls, "deregister")
	if b.failDeregister != nil {
		return b.failDeregister
	}
	if _, ok := b.regs[fd]; !ok || b.tokens[fd] != tok {
		return fakeErr("remove", syscall.ENOENT)
	}
	delete(b.regs, fd)
	delete(b.tokens, fd)
	return nil
}

func (b *fakeBackend) Wait(dst []netpoll.Ready, msec int) ([]netpoll.Ready, error) {
	b.calls = append(b.calls, "wait")
	b.msec = msec
	if b.failWait != nil {
		return dst, b.failWait
	}
	return append(dst, b.pending...), nil
}

func (b *fakeBackend) Close() error {
	b.closes++
	return nil
}

func (b *fakeBackend) Name() string {
	return "fake"
}

func TestAddRollsBackOnBackendFailure(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)

	b.failRegister = fakeErr("add", syscall.ENOMEM)
	err := p.Add(5, NewInterest().WithRead())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errorx.ErrResourceExhausted), "got %v", err)
	assert.Equal(t, 0, p.Len())
	_, ok := p.Interest(5)
	assert.False(t, ok)

	b.failRegister = nil
	require.NoError(t, p.Add(5, NewInterest().WithRead()))
	interest, ok := p.Interest(5)
	require.True(t, ok)
	assert.Equal(t, Readable, interest)
}

func TestAddDuplicate(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)

	require.NoError(t, p.Add(3, Readable))
	b.calls = nil
	err := p.Add(3, Writable)
	assert.ErrorIs(t, err, errorx.ErrAlreadyRegistered)
	assert.Empty(t, b.calls, "duplicate add must not reach the backend")

	interest, ok := p.Interest(3)
	require.True(t, ok)
	assert.Equal(t, Readable, interest)
}

func TestModifyRestoresPreviousOnFailure(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)

	require.NoError(t, p.AddContext(7, Readable, "seven"))
	b.failReregister = fakeErr("modify", syscall.ENOSPC)
	err := p.Modify(7, Readable|Writable)
	assert.ErrorIs(t, err, errorx.ErrResourceExhausted)

	interest, ok := p.Interest(7)
	require.True(t, ok)
	assert.Equal(t, Readable, interest)
	assert.Equal(t, Readable, b.regs[7])

	// The token kept in the table must still be the one the backend knows.
	b.failReregister = nil
	require.NoError(t, p.Modify(7, Writable))
	assert.Equal(t, Writable, b.regs[7])

	b.pending = []netpoll.Ready{{FD: 7, Events: EventWrite}}
	ready, err := p.Pull(0)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "seven", ready[0].Context)

	require.NoError(t, p.Remove(7))
}

func TestTokenStoredAfterRegister(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)

	require.NoError(t, p.Add(6, Readable))
	reg, err := p.table.Lookup(6)
	require.NoError(t, err)
	assert.Equal(t, b.tokens[6], reg.Token)

	require.NoError(t, p.Modify(6, Writable))
	reg, err = p.table.Lookup(6)
	require.NoError(t, err)
	assert.Equal(t, b.tokens[6], reg.Token)
}

func TestTableLostDuringRegister(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)
	b.afterRegister = func(fd int) { _, _ = p.table.Remove(fd) }

	err := p.Add(8, Readable)
	assert.ErrorIs(t, err, errorx.ErrNotRegistered)
	assert.Empty(t, b.regs, "the backend kept an fd the table no longer knows")
	assert.Equal(t, 0, p.Len())

	b.afterRegister = nil
	require.NoError(t, p.Add(8, Readable))
	b.afterRegister = func(fd int) { _, _ = p.table.Remove(fd) }
	err = p.Modify(8, Writable)
	assert.ErrorIs(t, err, errorx.ErrNotRegistered)
	assert.Empty(t, b.regs)
	assert.Equal(t, 0, p.Len())
}

func TestModifyAndRemoveAbsent(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)

	assert.ErrorIs(t, p.Modify(11, Readable), errorx.ErrNotRegistered)
	assert.ErrorIs(t, p.Remove(11), errorx.ErrNotRegistered)
	assert.Empty(t, b.calls)
}

func TestRemoveKeepsRegistrationOnFailure(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)

	require.NoError(t, p.Add(4, Writable))
	b.failDeregister = fakeErr("remove", syscall.EBADF)
	require.Error(t, p.Remove(4))
	assert.Equal(t, 1, p.Len())

	b.failDeregister = nil
	require.NoError(t, p.Remove(4))
	assert.Equal(t, 0, p.Len())
	assert.Empty(t, b.regs)
}

func TestPullCoalescesAndDropsStale(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)

	require.NoError(t, p.AddContext(3, Readable|Writable, 33))
	require.NoError(t, p.Add(4, Writable))
	b.pending = []netpoll.Ready{
		{FD: 3, Events: EventRead},
		{FD: 4, Events: EventWrite},
		{FD: 9, Events: EventRead},
		{FD: 3, Events: EventWrite | EventHangUp},
	}

	ready, err := p.Pull(Infinite)
	require.NoError(t, err)
	assert.Equal(t, -1, b.msec)
	assert.Equal(t, []Readiness{
		{FD: 3, Events: EventRead | EventWrite | EventHangUp, Context: 33},
		{FD: 4, Events: EventWrite},
	}, ready)
}

func TestPullWaitFailure(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)

	b.failWait = fakeErr("wait", syscall.EBADF)
	ready, err := p.Pull(0)
	assert.Error(t, err)
	assert.Empty(t, ready)
}

func TestDurationToMsec(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int
	}{
		{Infinite, -1},
		{-time.Hour, -1},
		{0, 0},
		{time.Nanosecond, 1},
		{999 * time.Microsecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{time.Second, 1000},
		{time.Duration(math.MaxInt64), math.MaxInt32},
		{time.Duration(math.MaxInt64) - 1, math.MaxInt32},
		{time.Duration(math.MaxInt64) - time.Millisecond + 2, math.MaxInt32},
		{time.Duration(math.MaxInt32) * time.Millisecond, math.MaxInt32},
		{time.Duration(math.MaxInt32)*time.Millisecond - 1, math.MaxInt32},
		{time.Duration(math.MaxInt32-1) * time.Millisecond, math.MaxInt32 - 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, durationToMsec(c.in), "duration %v", c.in)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)
	require.NoError(t, p.Add(1, Readable))

	require.NoError(t, p.Close())
	b.calls = nil

	assert.ErrorIs(t, p.Add(2, Readable), errorx.ErrClosed)
	assert.ErrorIs(t, p.Modify(1, Writable), errorx.ErrClosed)
	assert.ErrorIs(t, p.Remove(1), errorx.ErrClosed)
	_, err := p.Pull(0)
	assert.ErrorIs(t, err, errorx.ErrClosed)
	assert.ErrorIs(t, p.Close(), errorx.ErrClosed)

	assert.Empty(t, b.calls)
	assert.Equal(t, 1, b.closes)
}

func TestIntrospectionAfterClose(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)
	require.NoError(t, p.AddContext(1, Readable, "one"))
	require.NoError(t, p.Add(2, Writable))
	require.NoError(t, p.Close())

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "fake", p.Backend())
	interest, ok := p.Interest(1)
	require.True(t, ok)
	assert.Equal(t, Readable, interest)

	got := make(map[int]any)
	p.Range(func(fd int, _ Interest, ctx any) bool {
		got[fd] = ctx
		return true
	})
	assert.Equal(t, map[int]any{1: "one", 2: nil}, got)
}

func TestRangeStopsEarlyAndAllowsRemove(t *testing.T) {
	b := newFakeBackend()
	p := newPoller(b, nil)
	for fd := 0; fd < 5; fd++ {
		require.NoError(t, p.Add(fd, Readable))
	}

	n := 0
	p.Range(func(int, Interest, any) bool {
		n++
		return n < 2
	})
	assert.Equal(t, 2, n)

	p.Range(func(fd int, _ Interest, _ any) bool {
		require.NoError(t, p.Remove(fd))
		return true
	})
	assert.Equal(t, 0, p.Len())
	assert.Empty(t, b.regs)
}

// TestNetEffect checks that after any sequence of operations, failing or not,
// the table and the backend hold the same registrations.
func TestNetEffect(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	interests := []Interest{NewInterest(), Readable, Writable, Readable | Writable}

	for round := 0; round < 30; round++ {
		b := newFakeBackend()
		p := newPoller(b, nil)
		for op := 0; op < 300; op++ {
			fd := rng.Intn(12)
			interest := interests[rng.Intn(len(interests))]
			b.failRegister, b.failReregister, b.failDeregister = nil, nil, nil
			if rng.Intn(5) == 0 {
				injected := fakeErr("injected", syscall.ENOMEM)
				b.failRegister, b.failReregister, b.failDeregister = injected, injected, injected
			}
			switch rng.Intn(3) {
			case 0:
				_ = p.Add(fd, interest)
			case 1:
				_ = p.Modify(fd, interest)
			case 2:
				_ = p.Remove(fd)
			}
		}

		require.Equal(t, len(b.regs), p.Len())
		for fd, interest := range b.regs {
			got, ok := p.Interest(fd)
			require.True(t, ok, "fd=%d missing from the table", fd)
			assert.Equal(t, interest, got)
		}
	}
}
