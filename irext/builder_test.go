package irext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
)

func TestModuleBuilderDedupesScalarTypesAndConstants(t *testing.T) {
	mb := irext.NewModuleBuilder()

	t1 := mb.ScalarType(ir.ScalarSint, 4)
	t2 := mb.ScalarType(ir.ScalarSint, 4)
	assert.Equal(t, t1, t2, "identical scalar types should intern to the same handle")

	c1 := mb.ConstI32(42)
	c2 := mb.ConstI32(42)
	assert.Equal(t, c1, c2, "identical i32 constants should be deduplicated")

	c3 := mb.ConstI32(7)
	assert.NotEqual(t, c1, c3)

	module := mb.Module()
	assert.Len(t, module.Constants, 2)
}

func TestModuleBuilderReserveThenSetFunction(t *testing.T) {
	mb := irext.NewModuleBuilder()

	// Two mutually-recursive placeholders reserved before either body
	// exists.
	a := mb.ReserveFunction()
	b := mb.ReserveFunction()
	require.NotEqual(t, a, b)

	mb.SetFunction(a, ir.Function{Name: "a"})
	mb.SetFunction(b, ir.Function{Name: "b"})

	module := mb.Module()
	require.Len(t, module.Functions, 2)
	assert.Equal(t, "a", module.Functions[a].Name)
	assert.Equal(t, "b", module.Functions[b].Name)
}

func TestModuleBuilderAddGlobalAndEntryPoint(t *testing.T) {
	mb := irext.NewModuleBuilder()
	i32 := mb.ScalarType(ir.ScalarSint, 4)

	g := mb.AddGlobal(ir.GlobalVariable{Name: "counter", Space: ir.SpacePrivate, Type: i32})
	fn := mb.AddFunction(ir.Function{Name: "main"})
	mb.AddEntryPoint(ir.EntryPoint{Name: "main", Stage: ir.StageCompute, Function: fn})

	module := mb.Module()
	require.Len(t, module.GlobalVariables, 1)
	assert.Equal(t, "counter", module.GlobalVariables[g].Name)
	require.Len(t, module.EntryPoints, 1)
	assert.Equal(t, "main", module.EntryPoints[0].Name)
}
