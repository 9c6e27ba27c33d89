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

// Package waiter provides the implementation of the echo waiter registry: an
// ordered chain of callbacks representing callers blocked on outstanding
// ICMPv6 echo requests.
//
// A caller that sends an echo request registers an Entry before sending and
// unregisters it when done. When the input path receives an echo reply it
// dispatches the packet through the queue; each entry's claim callback
// inspects the packet (typically its ident and sequence fields) and decides
// whether the reply belongs to it. A typical blocking caller looks like:
//
//	e, ch := waiter.NewChannelEntry(func(pkt []byte) bool {
//		return matchesMyIdentAndSeq(pkt)
//	})
//	q.Register(&e)
//	defer q.Unregister(&e)
//
//	send(echoRequest)
//	select {
//	case reply := <-ch:
//		// Got the reply.
//	case <-timer.C:
//		// Timed out; the registry does not time entries out itself.
//	}
//
// The queue is safe for concurrent use, but dispatch runs the claim callbacks
// synchronously on the caller's goroutine: callbacks must not block and must
// not call back into the queue.
package waiter

import (
	"sync"
)

// Disposition is the signal value threaded through a dispatch of the queue.
type Disposition int

const (
	// Unclaimed is the neutral disposition an echo reply is dispatched
	// with. If it is still the disposition after dispatch, no registered
	// waiter recognized the packet.
	Unclaimed Disposition = iota

	// Claimed is returned by an entry's claim callback to consume the
	// packet and stop the dispatch.
	Claimed
)

// Entry represents a waiter that can be added to a queue. It can only be in
// one queue at a time, and is added to the queue intrusively with no extra
// memory allocations.
type Entry struct {
	// Context stores any state the waiter may wish to store in the entry
	// itself, which may be used at claim time.
	Context any

	// Claim decides whether an inbound echo reply belongs to this waiter.
	// It runs on the input path's goroutine and must not block. The
	// packet view is only valid for the duration of the call; a claimer
	// that needs the bytes afterwards must copy them.
	Claim func(e *Entry, pkt []byte) Disposition

	// next and prev are protected by the queue lock.
	next, prev *Entry
}

// Queue represents the registry where waiters are added and to which inbound
// echo replies are dispatched.
//
// The zero value of Queue is an empty queue ready for use.
type Queue struct {
	mu   sync.RWMutex
	head *Entry
	tail *Entry
}

// Register adds a waiter to the back of the queue. Replies are offered to
// waiters in registration order.
func (q *Queue) Register(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e.next = nil
	e.prev = q.tail
	if q.tail != nil {
		q.tail.next = e
	} else {
		q.head = e
	}
	q.tail = e
}

// Unregister removes the given waiter entry from the queue. It is a no-op if
// the entry is not registered.
func (q *Queue) Unregister(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e.prev != nil {
		e.prev.next = e.next
	} else if q.head == e {
		q.head = e.next
	} else {
		// Not in this queue.
		return
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		q.tail = e.prev
	}
	e.next = nil
	e.prev = nil
}

// IsEmpty reports whether the queue has no registered waiters.
func (q *Queue) IsEmpty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.head == nil
}

// Dispatch offers pkt to each registered waiter in order, threading the
// disposition through the chain, until one claims it or the chain is
// exhausted. The final disposition is returned; Unclaimed means the packet
// was not consumed and the caller should drop it.
func (q *Queue) Dispatch(pkt []byte, d Disposition) Disposition {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for e := q.head; e != nil && d == Unclaimed; e = e.next {
		if e.Claim != nil {
			d = e.Claim(e, pkt)
		}
	}
	return d
}

type channelContext struct {
	ch    chan []byte
	match func([]byte) bool
}

// NewChannelEntry initializes a new Entry that claims any reply for which
// match returns true, delivering a copy of the packet to the returned
// channel. The channel has a buffer of one; a reply that arrives while a
// previous one is still buffered is left unclaimed.
func NewChannelEntry(match func(pkt []byte) bool) (Entry, chan []byte) {
	ctx := &channelContext{
		ch:    make(chan []byte, 1),
		match: match,
	}
	return Entry{
		Context: ctx,
		Claim: func(e *Entry, pkt []byte) Disposition {
			ctx := e.Context.(*channelContext)
			if ctx.match != nil && !ctx.match(pkt) {
				return Unclaimed
			}
			// The packet view dies with the dispatch, so hand the
			// waiter its own copy.
			c := make([]byte, len(pkt))
			copy(c, pkt)
			select {
			case ctx.ch <- c:
				return Claimed
			default:
				return Unclaimed
			}
		},
	}, ctx.ch
}
