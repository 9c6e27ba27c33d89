// Copyright 2024 The uStack Authors.
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

package stack

import (
	"golang.org/x/time/rate"
)

const (
	// icmpLimit is the default maximum number of ICMP replies permitted
	// per second.
	icmpLimit rate.Limit = 1000

	// icmpBurst is the default number of ICMP replies that can be sent in
	// a single burst.
	icmpBurst = 2000
)

// ICMPRateLimiter is a limiter that controls the generation of replies by an
// endpoint.
type ICMPRateLimiter struct {
	*rate.Limiter
}

// NewICMPRateLimiter returns a limiter permitting icmpLimit replies per
// second with bursts up to icmpBurst.
func NewICMPRateLimiter() *ICMPRateLimiter {
	return &ICMPRateLimiter{Limiter: rate.NewLimiter(icmpLimit, icmpBurst)}
}
