// Copyright (c) 2020 Andy Pan
// Copyright (c) 2017 Max Riveiro
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package reuseport opens listeners with SO_REUSEPORT set and exposes the
// file-descriptor behind them so it can be registered with a poller.
package reuseport

import (
	"fmt"
	"net"
	"syscall"

	"github.com/libp2p/go-reuseport"
	"go.uber.org/multierr"
)

// Listener is a net.Listener together with its file-descriptor.
// The descriptor is owned by the listener, closing the listener closes it.
type Listener struct {
	net.Listener
	FD int
}

// Listen announces on the local address with SO_REUSEPORT set.
func Listen(network, addr string) (*Listener, error) {
	ln, err := reuseport.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	fd, err := socketFD(ln)
	if err != nil {
		return nil, multierr.Append(err, ln.Close())
	}
	return &Listener{Listener: ln, FD: fd}, nil
}

// Available tells whether SO_REUSEPORT is supported on this system.
func Available() bool {
	return reuseport.Available()
}

func socketFD(ln net.Listener) (fd int, err error) {
	sc, ok := ln.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("listener on %s exposes no file-descriptor", ln.Addr())
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd = -1
	if err = rc.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return -1, err
	}
	return fd, nil
}
