// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package pool provides size-bucketed sync.Pool wrappers for float32 and byte
// buffers. No other package of this module imports it.
package pool

import "sync"

var poolFloat32 = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

var poolByte = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

func getSizedPoolFloat32(size int) *sync.Pool {
	poolFloat32.RLock()
	p := poolFloat32.m[size]
	poolFloat32.RUnlock()
	if p == nil {
		p = &sync.Pool{New: func() interface{} { return make([]float32, size) }}
		poolFloat32.Lock()
		poolFloat32.m[size] = p
		poolFloat32.Unlock()
	}
	return p
}

// GetFloat32 retrieves a size-length []float32 from the pool, or
// allocates a new one on first use for that size.
func GetFloat32(size int) []float32 {
	return getSizedPoolFloat32(size).Get().([]float32)[:size]
}

// PutFloat32 returns arr to the pool, keyed by its capacity.
func PutFloat32(arr []float32) {
	if cap(arr) == 0 {
		return
	}
	getSizedPoolFloat32(cap(arr)).Put(arr[:cap(arr)])
}

func getSizedPoolByte(size int) *sync.Pool {
	poolByte.RLock()
	p := poolByte.m[size]
	poolByte.RUnlock()
	if p == nil {
		p = &sync.Pool{New: func() interface{} { return make([]byte, size) }}
		poolByte.Lock()
		poolByte.m[size] = p
		poolByte.Unlock()
	}
	return p
}

// GetByte retrieves a size-length []byte from the pool.
func GetByte(size int) []byte {
	return getSizedPoolByte(size).Get().([]byte)[:size]
}

// PutByte returns arr to the pool, keyed by its capacity.
func PutByte(arr []byte) {
	if cap(arr) == 0 {
		return
	}
	getSizedPoolByte(cap(arr)).Put(arr[:cap(arr)])
}

// ClearPools discards all pooled buffers. Intended for tests that want a clean
// baseline, or for long-running hosts (the REST server) between stacking runs.
func ClearPools() {
	poolFloat32.Lock()
	poolFloat32.m = make(map[int]*sync.Pool)
	poolFloat32.Unlock()

	poolByte.Lock()
	poolByte.m = make(map[int]*sync.Pool)
	poolByte.Unlock()
}
