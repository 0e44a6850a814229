/*
 * VC5 load balancer. Copyright (C) 2021-present David Coles
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

// Package log is the logging interface injected into the core: one
// method per event class, so a caller can wire structured logging
// without the core depending directly on any particular logger.
package log

// KV is one structured field attached to a log event.
type KV struct {
	Key   string
	Value interface{}
}

// Log is implemented by anything the core can report routing events to.
type Log interface {
	Neighbour(sid string, msg string, kv ...KV)
	LinkState(sid string, msg string, kv ...KV)
	Send(msg string, kv ...KV)
	Error(msg string, kv ...KV)
}

// Nil discards every event; the default when no logger is supplied.
type Nil struct{}

func (Nil) Neighbour(string, string, ...KV) {}
func (Nil) LinkState(string, string, ...KV) {}
func (Nil) Send(string, ...KV)              {}
func (Nil) Error(string, ...KV)             {}
