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

// Package registry keeps track of what a poller has registered.
// It never talks to the kernel, callers sequence table updates and backend calls.
package registry

import (
	"github.com/panjf2000/poller/internal/netpoll"
	errorx "github.com/panjf2000/poller/pkg/errors"
)

// Registration is the record of one registered file-descriptor.
type Registration struct {
	FD       int
	Interest netpoll.Interest
	Token    netpoll.Token
	Context  any
}

// Table maps file-descriptors to their registrations, it is not safe for concurrent use.
type Table struct {
	regs map[int]Registration
}

// New returns an empty table.
func New() *Table {
	return &Table{regs: make(map[int]Registration)}
}

// Insert adds r, an existing registration of the same fd is left untouched.
func (t *Table) Insert(r Registration) error {
	if _, ok := t.regs[r.FD]; ok {
		return errorx.ErrAlreadyRegistered
	}
	t.regs[r.FD] = r
	return nil
}

// Update replaces the registration of r.FD and returns the one it replaced.
func (t *Table) Update(r Registration) (Registration, error) {
	prev, ok := t.regs[r.FD]
	if !ok {
		return Registration{}, errorx.ErrNotRegistered
	}
	t.regs[r.FD] = r
	return prev, nil
}

// Remove deletes the registration of fd and returns it.
func (t *Table) Remove(fd int) (Registration, error) {
	r, ok := t.regs[fd]
	if !ok {
		return Registration{}, errorx.ErrNotRegistered
	}
	delete(t.regs, fd)
	return r, nil
}

// Lookup returns the registration of fd.
func (t *Table) Lookup(fd int) (Registration, error) {
	r, ok := t.regs[fd]
	if !ok {
		return Registration{}, errorx.ErrNotRegistered
	}
	return r, nil
}

// Len returns the number of registrations.
func (t *Table) Len() int {
	return len(t.regs)
}

// Range calls fn for every registration in no particular order until fn returns false.
func (t *Table) Range(fn func(Registration) bool) {
	for _, r := range t.regs {
		if !fn(r) {
			return
		}
	}
}
