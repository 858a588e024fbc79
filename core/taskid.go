package core

// TaskID is a packed generational handle identifying a task slot.
//
// Bit layout (most significant first):
//
//	valid      1 bit   set for every handle produced by PackTaskID
//	pool       10 bits pool index, up to MaxPoolCount pools
//	slot       16 bits slot index within the pool, up to MaxSlotsPerPool
//	generation 5 bits  slot reuse counter, wraps at GenerationCount
//
// The all-zero value is InvalidTaskID, the "no task" sentinel. A set valid
// bit only means the handle was produced by the codec; liveness requires
// that the generation still matches the slot's current generation.
type TaskID uint32

// InvalidTaskID is the "no task" sentinel.
const InvalidTaskID TaskID = 0

const (
	poolIndexBits  = 10
	slotIndexBits  = 16
	generationBits = 5

	// MaxPoolCount is the maximum number of task pools a scheduler may own.
	MaxPoolCount = 1 << poolIndexBits

	// MaxSlotsPerPool is the maximum slot count of a single task pool.
	MaxSlotsPerPool = 1 << slotIndexBits

	// GenerationCount is the number of distinct generation values. Slot
	// generations wrap modulo this count, so stale handles are detected
	// with high (not absolute) probability.
	GenerationCount = 1 << generationBits

	validShift     = poolIndexBits + slotIndexBits + generationBits
	poolIndexShift = slotIndexBits + generationBits
	slotIndexShift = generationBits

	poolIndexMask  = MaxPoolCount - 1
	slotIndexMask  = MaxSlotsPerPool - 1
	generationMask = GenerationCount - 1
)

// PackTaskID builds a handle from a pool index, slot index and generation.
// Arguments wider than the field widths are masked.
func PackTaskID(poolIndex, slotIndex, generation uint32) TaskID {
	return TaskID(1<<validShift |
		(poolIndex&poolIndexMask)<<poolIndexShift |
		(slotIndex&slotIndexMask)<<slotIndexShift |
		generation&generationMask)
}

// IsValid reports whether the handle was produced by PackTaskID.
// It does not imply the referenced task is still alive.
func (id TaskID) IsValid() bool {
	return id>>validShift == 1
}

// PoolIndex returns the pool index field.
func (id TaskID) PoolIndex() uint32 {
	return uint32(id>>poolIndexShift) & poolIndexMask
}

// SlotIndex returns the slot index field.
func (id TaskID) SlotIndex() uint32 {
	return uint32(id>>slotIndexShift) & slotIndexMask
}

// Generation returns the generation field.
func (id TaskID) Generation() uint32 {
	return uint32(id) & generationMask
}
