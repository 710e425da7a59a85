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

import (
	"fmt"
	"strings"
)

// Interest is the set of readiness categories requested for a registration.
// Error and hang-up are not requestable, they are always reported.
type Interest uint32

const (
	// InterestRead asks for readable notifications.
	InterestRead Interest = 1 << iota
	// InterestWrite asks for writable notifications.
	InterestWrite

	interestMask = InterestRead | InterestWrite
)

// WithRead returns a copy of i with the readable interest enabled.
func (i Interest) WithRead() Interest {
	return i | InterestRead
}

// WithWrite returns a copy of i with the writable interest enabled.
func (i Interest) WithWrite() Interest {
	return i | InterestWrite
}

// IsReadable reports whether readable notifications are requested.
func (i Interest) IsReadable() bool {
	return i&InterestRead != 0
}

// IsWritable reports whether writable notifications are requested.
func (i Interest) IsWritable() bool {
	return i&InterestWrite != 0
}

// IsNone reports whether neither direction is requested.
func (i Interest) IsNone() bool {
	return i&interestMask == 0
}

func (i Interest) String() string {
	return fmt.Sprintf("0x%08X", uint32(i))
}

// Events is the set of readiness categories observed on a file descriptor.
type Events uint8

const (
	// EventRead means the source can be read without blocking.
	EventRead Events = 1 << iota
	// EventWrite means the source can be written without blocking.
	EventWrite
	// EventError means an error condition is pending on the source.
	EventError
	// EventHangUp means the peer hung up or shut down its writing half.
	EventHangUp
)

// HasRead reports whether the readable event fired.
func (e Events) HasRead() bool {
	return e&EventRead != 0
}

// HasWrite reports whether the writable event fired.
func (e Events) HasWrite() bool {
	return e&EventWrite != 0
}

// HasError reports whether an error condition fired.
func (e Events) HasError() bool {
	return e&EventError != 0
}

// HasHangUp reports whether a hang-up fired.
func (e Events) HasHangUp() bool {
	return e&EventHangUp != 0
}

// IsNone reports whether nothing fired.
func (e Events) IsNone() bool {
	return e == 0
}

var eventNames = [...]string{"read", "write", "error", "hangup"}

func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	var sb strings.Builder
	for i, name := range eventNames {
		if e&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
	}
	return sb.String()
}
