// Doubly-linked list optimised for LRU ordering. Adapted from a concurrent
// list implementation; this version drops the per-element locking because
// every caller here already holds the cache's single exclusion lock (or,
// in single-threaded mode, no lock is needed at all) — see cache.go.
//
// This file incorporates work covered by the following copyright and
// permission notice:
//
// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

// node is an element of the LRU list. A *node is the stable handle an Item
// keeps to its own position, so moving it to the MRU end or unlinking it is
// O(1) regardless of how many other entries exist.
type node struct {
	next, prev *node
	list       *list
	entry      *Item
}

// list is a doubly linked list with sentinel head/tail nodes, used as the
// cache's LRU order: Front is least recently used, Back is most recently
// used.
type list struct {
	head, tail node
	len        int
}

func newList() *list {
	l := &list{}
	l.head.next = &l.tail
	l.tail.prev = &l.head
	l.head.list = l
	l.tail.list = l
	return l
}

func (l *list) Len() int { return l.len }

// Front returns the least recently used node, or nil if the list is empty.
func (l *list) Front() *node {
	if l.len == 0 {
		return nil
	}
	return l.head.next
}

// PushBack inserts entry at the MRU end and returns its stable handle.
func (l *list) PushBack(entry *Item) *node {
	n := &node{entry: entry, list: l}
	p := l.tail.prev
	p.next = n
	n.prev = p
	n.next = &l.tail
	l.tail.prev = n
	l.len++
	return n
}

// MoveToBack moves n to the MRU end. A no-op if n is already there.
func (l *list) MoveToBack(n *node) {
	if l.tail.prev == n {
		return
	}
	l.unlink(n)
	p := l.tail.prev
	p.next = n
	n.prev = p
	n.next = &l.tail
	l.tail.prev = n
}

// Remove unlinks n from the list. n must belong to l.
func (l *list) Remove(n *node) {
	l.unlink(n)
	l.len--
	n.next = nil
	n.prev = nil
	n.list = nil
}

// unlink splices n out of the list without touching len; callers adjust
// len themselves since MoveToBack re-splices without a net change.
func (l *list) unlink(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}
