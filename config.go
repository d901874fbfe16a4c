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

import "time"

// maxOrecTableSize bounds OrecTableSize: Open refuses anything past it
// with ErrOrecTableAlloc rather than attempting the allocation (spec.md
// §7 "Startup misconfiguration").
const maxOrecTableSize = 1 << 30

// Config is the only configuration this runtime exposes; everything else
// belongs to clients (spec.md §6 "Environment").
type Config struct {
	// OrecTableSize is the number of stripes in the ownership-record
	// table. Rounded up to the next power of two.
	OrecTableSize int

	// MaxAttempts is the number of consecutive aborts a transaction
	// tolerates before escalating to the global fallback lock.
	MaxAttempts int

	// BackoffCap is K in spec.md §5's backoff formula: the delay is drawn
	// from [0, 2^min(k,K)] * BackoffBase, where k is the consecutive
	// abort count.
	BackoffCap int

	// BackoffBase scales the exponential-random retry backoff.
	BackoffBase time.Duration

	// ArenaBlockSize is the initial block size of each worker's
	// thread-local allocation arena (lib/memory.c's initBlockCapacity).
	ArenaBlockSize int

	// ArenaGrowthFactor multiplies a block's capacity when the arena
	// needs a new block (lib/memory.c's blockGrowthFactor).
	ArenaGrowthFactor int
}

// DefaultConfig mirrors the teacher's DefaultConfig: every field has a
// sane default and validate() clamps rather than rejects, except for the
// worker count, which is refused outright at StartWorkers (spec.md §7
// "Startup misconfiguration").
var DefaultConfig = Config{
	OrecTableSize:     1 << 20,
	MaxAttempts:       64,
	BackoffCap:        8,
	BackoffBase:       10 * time.Microsecond,
	ArenaBlockSize:    64 * 1024,
	ArenaGrowthFactor: 2,
}

func (c *Config) validate() {
	if c.OrecTableSize <= 0 {
		c.OrecTableSize = DefaultConfig.OrecTableSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultConfig.BackoffCap
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultConfig.BackoffBase
	}
	if c.ArenaBlockSize <= 0 {
		c.ArenaBlockSize = DefaultConfig.ArenaBlockSize
	}
	if c.ArenaGrowthFactor <= 1 {
		c.ArenaGrowthFactor = DefaultConfig.ArenaGrowthFactor
	}
}
