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

package log

import "github.com/sirupsen/logrus"

// Logrus adapts a *logrus.Logger to the Log interface.
type Logrus struct {
	*logrus.Logger
}

// NewLogrus wraps l, or a freshly constructed logger if l is nil.
func NewLogrus(l *logrus.Logger) Logrus {
	if l == nil {
		l = logrus.New()
	}
	return Logrus{l}
}

func fields(sid string, kv []KV) logrus.Fields {
	f := make(logrus.Fields, len(kv)+1)
	if sid != "" {
		f["sid"] = sid
	}
	for _, e := range kv {
		f[e.Key] = e.Value
	}
	return f
}

func (l Logrus) Neighbour(sid string, msg string, kv ...KV) {
	l.WithFields(fields(sid, kv)).Debug(msg)
}

func (l Logrus) LinkState(sid string, msg string, kv ...KV) {
	l.WithFields(fields(sid, kv)).Debug(msg)
}

func (l Logrus) Send(msg string, kv ...KV) {
	l.WithFields(fields("", kv)).Trace(msg)
}

func (l Logrus) Error(msg string, kv ...KV) {
	l.WithFields(fields("", kv)).Error(msg)
}
