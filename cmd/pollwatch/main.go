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

// Command pollwatch prints the readiness of stdin, of the files given as arguments
// and of optional TCP listeners until `q` is typed or it is interrupted.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	listen   []string
	timeout  time.Duration
	stdin    bool
	workers  int
	readSize int
	logPath  string
	logLevel int8
}

func newPollwatchCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "pollwatch [OPTIONS] [PATH...]",
		Short:         "Print the readiness events of stdin, files and listeners",
		Long: "Print the readiness events of stdin, files and listeners.\n\n" +
			"PATH is opened read-only and non-blocking, FIFOs, terminals and character devices work best.\n" +
			"Regular files can't be polled by epoll, they are skipped with a warning there.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, args, out)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.listen, "listen", "l", nil, "Watch a SO_REUSEPORT TCP listener on the given address")
	flags.DurationVarP(&opts.timeout, "timeout", "t", time.Second, "Longest time a single pull may block")
	flags.BoolVar(&opts.stdin, "stdin", true, "Watch stdin, typing q quits")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Size of the handler pool, 0 picks the default")
	flags.IntVar(&opts.readSize, "read-size", 4096, "Bytes read from a source per readiness event")
	flags.StringVar(&opts.logPath, "log-path", "", "Write logs to this file instead of stdout")
	flags.Int8Var(&opts.logLevel, "log-level", 0, "Logging level, -1 for debug up to 4 for fatal")

	return cmd
}

func main() {
	cmd := newPollwatchCommand(os.Stdout)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "pollwatch:", err)
		os.Exit(1)
	}
}
