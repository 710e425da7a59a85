// Copyright (c) 2019 Andy Pan
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

// Package goroutine runs readiness handlers off the polling goroutine.
package goroutine

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	// DefaultPoolSize sets up the capacity of worker pool, 1024.
	DefaultPoolSize = 1 << 10

	// ExpiryDuration is the interval time to clean up those expired workers.
	ExpiryDuration = 10 * time.Second

	// Nonblocking decides what to do when submitting a new task to a full worker pool: waiting for a available worker
	// or returning an error directly.
	Nonblocking = true
)

func init() {
	// It releases the default pool from ants.
	ants.Release()
}

// Pool is the alias of ants.Pool.
type Pool = ants.Pool

// New instantiates a non-blocking *Pool with the given capacity, DefaultPoolSize is used when size is not positive.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	options := ants.Options{ExpiryDuration: ExpiryDuration, Nonblocking: Nonblocking}
	return ants.NewPool(size, ants.WithOptions(options))
}

// RunAll runs every task on the pool and returns once all of them are done.
// A task the pool refuses, being overloaded or released, runs on the calling goroutine.
func RunAll(p *Pool, tasks []func()) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		run := func() {
			defer wg.Done()
			task()
		}
		if p.Submit(run) != nil {
			run()
		}
	}
	wg.Wait()
}
