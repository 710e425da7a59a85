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

/*
Package poller is a small readiness-notification primitive. It makes direct epoll, kqueue
or poll(2) syscalls and gives them one contract: register a file-descriptor with an interest,
then pull the sources that became ready.

Interests are level-triggered and sticky. A source stays reported for as long as its condition
holds and its interest is not changed, even on the one-shot epoll backend which re-arms every
reported source before Pull returns. Error and hang-up conditions are reported without being asked for.

The backend is chosen at build time:

	default       epoll on Linux, kqueue on Darwin and the BSDs, poll(2) on the other unix systems
	poll_oneshot  epoll with EPOLLONESHOT on Linux
	poll_posix    poll(2) on every unix system

The poller performs no I/O and starts no goroutines, a typical loop looks like:

	p, err := poller.Open()
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	if err = p.Add(fd, poller.NewInterest().WithRead()); err != nil {
		log.Fatal(err)
	}
	for {
		ready, err := p.Pull(time.Second)
		if err != nil {
			log.Fatal(err)
		}
		for _, r := range ready {
			if r.Events.HasRead() {
				// read from r.FD until it would block
			}
		}
	}

A Poller must be driven by one goroutine at a time.
*/
package poller
