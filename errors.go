// Copyright 2024 BINARY Members
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

package stamp

import "errors"

var (
	// ErrZeroWorkers is returned by StartWorkers when n <= 0. Startup
	// misconfiguration is refused rather than silently clamped.
	ErrZeroWorkers = errors.New("stamp: worker count must be positive")
	// ErrTxnDiscarded names the condition of a Txn used after it has
	// committed or aborted for the last time. Txn methods do not return
	// it: such a call panics through the runtime's logger instead.
	ErrTxnDiscarded = errors.New("stamp: transaction has already ended")
	// ErrNotFound signals an absent key/element to a caller. Containers
	// never abort the enclosing transaction for a simple miss.
	ErrNotFound = errors.New("stamp: not found")
	// ErrClosed is returned by Atomically (on a Runtime or a Worker) once
	// Runtime.Close has been called.
	ErrClosed = errors.New("stamp: runtime is closed")
	// ErrOrecTableAlloc is returned by Open when Config.OrecTableSize asks
	// for more stripes than the runtime is willing to allocate.
	ErrOrecTableAlloc = errors.New("stamp: orec table size exceeds allocation limit")
)
