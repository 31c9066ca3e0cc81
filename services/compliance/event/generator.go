// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package event

import (
	"math/rand/v2"
)

// Generator produces synthetic events with uniformly random attributes.
//
// # Description
//
// Every field is drawn independently: service, vendor and department from
// [0,5), sensitivity from [0,100). Each Generator owns its random source, so
// workers never contend on shared randomness.
//
// # Thread Safety
//
// Not safe for concurrent use. Create one Generator per worker.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a deterministic generator for the given seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomGenerator returns a generator seeded from the runtime's entropy.
func NewRandomGenerator() *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// Generate fills count raw events into dst, growing it if needed.
//
// # Inputs
//
//   - dst: Reusable buffer. May be nil.
//   - count: Number of events to produce. Values below zero produce none.
//
// # Outputs
//
//   - []Event: dst[:count] with fresh attributes, all-compliant registers
//     and no risk assessment.
func (g *Generator) Generate(dst []Event, count int) []Event {
	if count < 0 {
		count = 0
	}
	if cap(dst) < count {
		dst = make([]Event, count)
	}
	dst = dst[:count]

	for i := range dst {
		dst[i] = Event{
			Service: Service{
				Name:   ServiceName(g.rng.IntN(NumServices)),
				Vendor: Vendor(g.rng.IntN(NumVendors)),
			},
			Usage: Usage{
				Department:  Department(g.rng.IntN(NumDepartments)),
				Sensitivity: uint8(g.rng.IntN(MaxSensitivity)),
			},
			Compliance: AllCompliant,
		}
	}
	return dst
}
