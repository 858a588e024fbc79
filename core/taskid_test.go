package core

import "testing"

// TestTaskID_RoundTrip verifies codec field packing
// Given: every combination of sampled pool/slot indices and all generations
// When: the fields are packed into a TaskID and unpacked again
// Then: the unpacked fields equal the originals and the id is valid
func TestTaskID_RoundTrip(t *testing.T) {
	pools := []uint32{0, 1, 7, 255, 511, MaxPoolCount - 1}
	slots := []uint32{0, 1, 63, 255, 1024, MaxSlotsPerPool - 1}

	for _, pool := range pools {
		for _, slot := range slots {
			for gen := uint32(0); gen < GenerationCount; gen++ {
				id := PackTaskID(pool, slot, gen)

				if !id.IsValid() {
					t.Fatalf("PackTaskID(%d,%d,%d).IsValid() = false", pool, slot, gen)
				}
				if got := id.PoolIndex(); got != pool {
					t.Fatalf("PoolIndex() = %d, want %d", got, pool)
				}
				if got := id.SlotIndex(); got != slot {
					t.Fatalf("SlotIndex() = %d, want %d", got, slot)
				}
				if got := id.Generation(); got != gen {
					t.Fatalf("Generation() = %d, want %d", got, gen)
				}
			}
		}
	}
}

// TestTaskID_Sentinel verifies the none-value contract
// Given: the zero TaskID
// When: validity is checked
// Then: it reports invalid and decodes to all-zero fields
func TestTaskID_Sentinel(t *testing.T) {
	if InvalidTaskID.IsValid() {
		t.Fatal("InvalidTaskID.IsValid() = true, want false")
	}
	if InvalidTaskID.PoolIndex() != 0 || InvalidTaskID.SlotIndex() != 0 || InvalidTaskID.Generation() != 0 {
		t.Fatal("InvalidTaskID decodes to non-zero fields")
	}
}

// TestTaskID_FieldMasking verifies over-wide arguments are masked
// Given: field values exceeding the configured field widths
// When: they are packed
// Then: only the low field-width bits survive
func TestTaskID_FieldMasking(t *testing.T) {
	id := PackTaskID(MaxPoolCount+3, MaxSlotsPerPool+9, GenerationCount+1)

	if got := id.PoolIndex(); got != 3 {
		t.Errorf("PoolIndex() = %d, want 3", got)
	}
	if got := id.SlotIndex(); got != 9 {
		t.Errorf("SlotIndex() = %d, want 9", got)
	}
	if got := id.Generation(); got != 1 {
		t.Errorf("Generation() = %d, want 1", got)
	}
}
