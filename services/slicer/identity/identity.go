// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity hands out process-unique entity IDs.
//
// Every entity of the geometry tree embeds Base. IDs come from a single
// monotonically increasing counter, so two live entities never share one
// unless an explicit clone-with-identity copied it on purpose.
package identity

import (
	"strconv"
	"sync/atomic"
)

// ID identifies an entity for the lifetime of the process.
//
// The zero value means "no entity".
type ID uint64

// None is the ID of no entity.
const None ID = 0

// String renders the ID in decimal.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

var counter atomic.Uint64

// Next allocates a fresh ID.
//
// Thread Safety:
//
//	Safe for concurrent use.
func Next() ID {
	return ID(counter.Add(1))
}

// Last returns the most recently allocated ID without allocating.
func Last() ID {
	return ID(counter.Load())
}

// Base carries the ID of an entity. Embed it by value.
//
// Description:
//
//	A zero Base has no ID; constructors call Init. Plain struct copies of an
//	entity must go through the entity's Clone (fresh IDs) or
//	CloneWithIdentity (same IDs), never both for one copy.
type Base struct {
	id ID
}

// Init assigns a fresh ID.
func (b *Base) Init() {
	b.id = Next()
}

// ID returns the entity ID.
func (b *Base) ID() ID {
	return b.id
}

// SetNewUniqueID replaces the ID with a fresh one.
//
// Used when an entity changes in a way that downstream consumers must see as
// a different entity, e.g. a volume whose local frame was reset.
func (b *Base) SetNewUniqueID() {
	b.id = Next()
}

// CopyID makes b carry the same ID as other.
func (b *Base) CopyID(other *Base) {
	b.id = other.id
}
