package growth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingVector tracks how many backing arrays it allocates. It grows to
// exactly the requested capacity.
type countingVector struct {
	length   int
	capacity int
	allocs   int
	grows    int
}

func (v *countingVector) Len() int { return v.length }
func (v *countingVector) Cap() int { return v.capacity }

func (v *countingVector) Reserve(n int) {
	if n <= v.capacity {
		return
	}
	v.capacity = n
	v.allocs++
	v.grows++
}

type countingFactory struct {
	last *countingVector
}

func (f *countingFactory) New() Vector {
	f.last = &countingVector{}
	return f.last
}

func (f *countingFactory) WithCapacity(n int) Vector {
	f.last = &countingVector{capacity: n}
	if n > 0 {
		f.last.allocs = 1
	}
	return f.last
}

func TestOperationsAllocationProfile(t *testing.T) {
	tests := []struct {
		name      string
		run       func(Factory)
		maxAllocs int
		minGrows  int
		maxGrows  int
	}{
		{name: NameDefaultCapacity, run: InitializeDefaultCapacity, maxAllocs: 1, minGrows: 1, maxGrows: 1},
		{name: NameZeroCapacity, run: InitializeZeroCapacity, maxAllocs: 1, minGrows: 1, maxGrows: 1},
		{name: NameTargetCapacity, run: InitializeTargetCapacity, maxAllocs: 1, minGrows: 0, maxGrows: 0},
		{name: NameMinimalThenGrow, run: InitializeMinimalThenGrow, maxAllocs: 2, minGrows: 1, maxGrows: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &countingFactory{}
			tt.run(f)

			require.NotNil(t, f.last)
			assert.GreaterOrEqual(t, f.last.Cap(), TargetCapacity)
			assert.Zero(t, f.last.Len(), "no element may be inserted")
			assert.LessOrEqual(t, f.last.allocs, tt.maxAllocs)
			assert.GreaterOrEqual(t, f.last.grows, tt.minGrows)
			assert.LessOrEqual(t, f.last.grows, tt.maxGrows)
		})
	}
}

func TestOperationsRegistrationOrder(t *testing.T) {
	ops := Operations(SliceFactory{})

	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	assert.Equal(t, []string{
		NameDefaultCapacity,
		NameZeroCapacity,
		NameTargetCapacity,
		NameMinimalThenGrow,
	}, names)
}

func TestOperationsRepeatedInvocation(t *testing.T) {
	for _, op := range Operations(SliceFactory{}) {
		t.Run(op.Name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				for i := 0; i < 10_000; i++ {
					op.Fn()
				}
			})
			require.NotNil(t, Sink)
			assert.GreaterOrEqual(t, Sink.Cap(), TargetCapacity)
		})
	}
}

func TestOperationsFreshStatePerInvocation(t *testing.T) {
	op := Operations(SliceFactory{})[0]

	op.Fn()
	first := Sink
	op.Fn()

	assert.NotSame(t, first, Sink)
}

func TestTargetCapacityAllocatesOnce(t *testing.T) {
	allocs := testing.AllocsPerRun(100, func() {
		InitializeTargetCapacity(SliceFactory{})
	})
	// one for the backing array, one for the *Slice header stored in Sink
	assert.LessOrEqual(t, allocs, 2.0)
}

func TestMinimalThenGrowReallocates(t *testing.T) {
	target := testing.AllocsPerRun(100, func() {
		InitializeTargetCapacity(SliceFactory{})
	})
	grown := testing.AllocsPerRun(100, func() {
		InitializeMinimalThenGrow(SliceFactory{})
	})
	assert.Greater(t, grown, target)
}

func TestRegistrySelect(t *testing.T) {
	reg := NewRegistry(SliceFactory{})

	t.Run("empty filter selects all", func(t *testing.T) {
		ops, unknown := reg.Select(nil)
		assert.Len(t, ops, 4)
		assert.Empty(t, unknown)
	})

	t.Run("keeps registration order", func(t *testing.T) {
		ops, unknown := reg.Select([]string{NameMinimalThenGrow, NameZeroCapacity})
		require.Len(t, ops, 2)
		assert.Equal(t, NameZeroCapacity, ops[0].Name)
		assert.Equal(t, NameMinimalThenGrow, ops[1].Name)
		assert.Empty(t, unknown)
	})

	t.Run("reports unknown names", func(t *testing.T) {
		ops, unknown := reg.Select([]string{"initializeNothing", NameTargetCapacity})
		assert.Len(t, ops, 1)
		assert.Equal(t, []string{"initializeNothing"}, unknown)
	})

	t.Run("lookup", func(t *testing.T) {
		op, ok := reg.Lookup(NameTargetCapacity)
		assert.True(t, ok)
		assert.Equal(t, NameTargetCapacity, op.Name)

		_, ok = reg.Lookup("missing")
		assert.False(t, ok)
	})
}
