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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd
// +build darwin dragonfly freebsd linux netbsd openbsd

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/panjf2000/poller"
	"github.com/panjf2000/poller/internal/reuseport"
	"github.com/panjf2000/poller/pkg/logging"
	"github.com/panjf2000/poller/pkg/pool/bytebuffer"
	"github.com/panjf2000/poller/pkg/pool/goroutine"
)

var errNothingToWatch = errors.New("nothing to watch")

type action int

const (
	actionNone action = iota
	actionRemove
	actionQuit
)

type source struct {
	name    string
	fd      int
	ln      *reuseport.Listener // set for listeners only
	quitOnQ bool
	close   func() error
}

type watcher struct {
	opts *options
	p    *poller.Poller
	pool *goroutine.Pool

	outMu sync.Mutex
	out   io.Writer
}

func runWatch(ctx context.Context, opts *options, paths []string, out io.Writer) (err error) {
	if err = setupLogging(opts); err != nil {
		return err
	}
	defer logging.Cleanup()

	w, err := newWatcher(opts, out)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, w.close())
	}()

	if opts.stdin {
		if serr := w.watchFD("stdin", unix.Stdin, true, nil); serr != nil {
			logging.Warnf("stdin can't be watched: %v", serr)
		}
	}
	for _, path := range paths {
		if err = w.watchPath(path); err != nil {
			return err
		}
	}
	for _, addr := range opts.listen {
		if err = w.watchListener(addr); err != nil {
			return err
		}
	}
	return w.run(ctx)
}

// setupLogging makes the file logger of --log-path the default one.
func setupLogging(opts *options) error {
	if opts.logPath == "" {
		return nil
	}
	logger, flush, err := logging.CreateLoggerAsLocalFile(opts.logPath, logging.Level(opts.logLevel))
	if err != nil {
		return err
	}
	logging.SetDefaultLoggerAndFlusher(logger, flush)
	return nil
}

func newWatcher(opts *options, out io.Writer) (w *watcher, err error) {
	w = &watcher{opts: opts, out: out}
	if w.pool, err = goroutine.New(opts.workers); err != nil {
		return nil, err
	}
	if w.p, err = poller.Open(poller.WithLogger(logging.GetDefaultLogger())); err != nil {
		w.pool.Release()
		return nil, err
	}
	level := logging.LogLevel()
	if opts.logPath != "" {
		level = logging.Level(opts.logLevel).String()
	}
	logging.Infof("watching with the %s backend, logging at %s level", w.p.Backend(), level)
	return w, nil
}

func (w *watcher) watchFD(name string, fd int, quitOnQ bool, closeFn func() error) error {
	src := &source{name: name, fd: fd, quitOnQ: quitOnQ, close: closeFn}
	return w.p.AddContext(fd, poller.NewInterest().WithRead(), src)
}

// watchPath opens path and watches it. Files the backend refuses to poll,
// like regular files under epoll, are skipped with a warning.
func (w *watcher) watchPath(path string) error {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err = w.watchFD(path, fd, false, func() error { return unix.Close(fd) }); err != nil {
		cerr := unix.Close(fd)
		if errors.Is(err, unix.EPERM) {
			logging.Warnf("%s can't be polled by the %s backend, skipped: %v", path, w.p.Backend(), err)
			w.printf("%s: not pollable, skipped\n", path)
			return cerr
		}
		return multierr.Append(fmt.Errorf("watch %s: %w", path, err), cerr)
	}
	return nil
}

func (w *watcher) watchListener(addr string) error {
	ln, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return err
	}
	name := "listener " + ln.Addr().String()
	src := &source{name: name, fd: ln.FD, ln: ln, close: ln.Close}
	if err = w.p.AddContext(ln.FD, poller.NewInterest().WithRead(), src); err != nil {
		return multierr.Append(err, ln.Close())
	}
	w.printf("%s: listening\n", name)
	return nil
}

// run pulls until it is told to quit, the context is done or no source is left.
// Handlers of one pull run on the pool and are all done before the next pull,
// the poller itself is only touched from this goroutine.
func (w *watcher) run(ctx context.Context) error {
	if w.p.Len() == 0 {
		return errNothingToWatch
	}
	for ctx.Err() == nil {
		ready, err := w.p.Pull(w.opts.timeout)
		if err != nil {
			return err
		}

		actions := make([]action, len(ready))
		tasks := make([]func(), len(ready))
		for i, r := range ready {
			i, r := i, r
			tasks[i] = func() { actions[i] = w.handle(r.Context.(*source), r.Events) }
		}
		goroutine.RunAll(w.pool, tasks)

		for i, r := range ready {
			src := r.Context.(*source)
			switch actions[i] {
			case actionQuit:
				logging.Infof("quit requested on %s", src.name)
				return nil
			case actionRemove:
				if err = w.unwatch(src); err != nil {
					logging.Warnf("failed to unwatch fd=%d: %v", src.fd, err)
				}
			}
		}
		if w.p.Len() == 0 {
			logging.Infof("every source is gone")
			return nil
		}
	}
	return nil
}

// handle reacts to the readiness of one source. A hang-up is read like a
// readable event so that buffered data and the end of stream are reported.
func (w *watcher) handle(src *source, ev poller.Events) action {
	if src.ln != nil {
		return w.accept(src, ev)
	}
	if !ev.HasRead() && !ev.HasHangUp() {
		w.printf("%s: %s\n", src.name, ev)
		if ev.HasError() {
			return actionRemove
		}
		return actionNone
	}

	buf := bytebuffer.GetLen(w.opts.readSize)
	defer bytebuffer.Put(buf)
	n, err := unix.Read(src.fd, buf.B)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		if ev.HasHangUp() && !ev.HasRead() {
			// Nothing left to read and the hang-up stays reported.
			w.printf("%s: %s\n", src.name, ev)
			return actionRemove
		}
		return actionNone
	case err != nil:
		logging.Errorf("failed to read from %s: %v", src.name, err)
		return actionRemove
	case n == 0:
		w.printf("%s: %s end of stream\n", src.name, ev)
		return actionRemove
	}

	data := buf.B[:n]
	w.printf("%s: %s %q\n", src.name, ev, data)
	if src.quitOnQ && hasQuitLine(data) {
		return actionQuit
	}
	return actionNone
}

func (w *watcher) accept(src *source, ev poller.Events) action {
	if ev.HasError() {
		w.printf("%s: %s\n", src.name, ev)
		return actionRemove
	}
	c, err := src.ln.Accept()
	if err != nil {
		logging.Warnf("failed to accept on %s: %v", src.name, err)
		return actionNone
	}
	w.printf("%s: %s accepted %s\n", src.name, ev, c.RemoteAddr())
	logging.Error(c.Close())
	return actionNone
}

func (w *watcher) unwatch(src *source) error {
	err := w.p.Remove(src.fd)
	if src.close != nil {
		err = multierr.Append(err, src.close())
	}
	w.printf("%s: unwatched\n", src.name)
	return err
}

// sources returns what the poller is watching.
func (w *watcher) sources() []*source {
	srcs := make([]*source, 0, w.p.Len())
	w.p.Range(func(_ int, _ poller.Interest, ctx any) bool {
		srcs = append(srcs, ctx.(*source))
		return true
	})
	return srcs
}

func (w *watcher) close() (err error) {
	for _, src := range w.sources() {
		err = multierr.Append(err, w.unwatch(src))
	}
	err = multierr.Append(err, w.p.Close())
	w.pool.Release()
	return err
}

func (w *watcher) printf(format string, args ...interface{}) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	_, _ = fmt.Fprintf(w.out, format, args...)
}

func hasQuitLine(data []byte) bool {
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if string(bytes.TrimSpace(line)) == "q" {
			return true
		}
	}
	return false
}
