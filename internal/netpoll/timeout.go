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

package netpoll

import "time"

// budget tracks how much of a wait timeout is left across EINTR retries.
type budget struct {
	msec     int
	deadline time.Time
}

func newBudget(msec int) budget {
	b := budget{msec: msec}
	if msec > 0 {
		b.deadline = time.Now().Add(time.Duration(msec) * time.Millisecond)
	}
	return b
}

// remaining returns the timeout to pass to the next wait and false once
// a finite timeout has run out.
func (b *budget) remaining() (int, bool) {
	if b.msec <= 0 {
		return b.msec, true
	}
	left := time.Until(b.deadline)
	if left <= 0 {
		return 0, false
	}
	// Round up, a sub-millisecond remainder must still block.
	return int((left + time.Millisecond - 1) / time.Millisecond), true
}
