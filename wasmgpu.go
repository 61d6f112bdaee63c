// Package wasmgpu compiles a WASM binary module into a SPIR-V compute
// shader that runs the module's exported functions one-per-invocation on
// the GPU.
//
// The pipeline mirrors the teacher naga's Compile/CompileWithOptions shape:
//
//	source -> Parse -> Lower -> Validate -> Generate
//
// Here the stages are:
//
//	.wasm bytes -> wasmfront.Decode -> assemble.Assemble -> ir.Validate -> spirv.Compile
package wasmgpu

import (
	"fmt"

	"github.com/gogpu/wasmgpu/assemble"
	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/spirv"
	"github.com/gogpu/wasmgpu/stdobjects"
	"github.com/gogpu/wasmgpu/wasmfront"
)

// CompileOptions configures WASM-to-SPIR-V compilation.
type CompileOptions struct {
	// SPIRVVersion is the target SPIR-V version (default: 1.3).
	SPIRVVersion spirv.Version

	// Debug enables debug info in output (OpName, OpLine, etc.)
	Debug bool

	// Validate enables IR validation before code generation.
	Validate bool

	// Tuneables controls subnormal emulation, memory layout, and
	// workgroup size; see stdobjects.Tuneables.
	Tuneables stdobjects.Tuneables
}

// DefaultOptions returns sensible default options.
func DefaultOptions() CompileOptions {
	return CompileOptions{
		SPIRVVersion: spirv.Version1_3,
		Debug:        false,
		Validate:     true,
		Tuneables:    stdobjects.DefaultTuneables(),
	}
}

// Compile compiles a WASM binary module to SPIR-V using default options.
func Compile(wasmBytes []byte) ([]byte, error) {
	return CompileWithOptions(wasmBytes, DefaultOptions())
}

// CompileWithOptions compiles a WASM binary module to SPIR-V with custom
// options. The compilation pipeline is:
//
//  1. Decode the WASM binary into its function/global/export structure
//  2. Assemble a naga IR module: standard objects, globals, every function
//     body transpiled, one entry point per exported function
//  3. Validate the IR (if enabled)
//  4. Generate the SPIR-V binary
func CompileWithOptions(wasmBytes []byte, opts CompileOptions) ([]byte, error) {
	fi, err := wasmfront.Decode(wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("wasmgpu: decode: %w", err)
	}

	module, err := assemble.Assemble(fi, opts.Tuneables)
	if err != nil {
		return nil, fmt.Errorf("wasmgpu: assemble: %w", err)
	}

	if opts.Validate {
		errs, err := ir.Validate(module)
		if err != nil {
			return nil, fmt.Errorf("wasmgpu: validate: %w", err)
		}
		if len(errs) > 0 {
			return nil, fmt.Errorf("wasmgpu: validate: %d error(s), first: %s", len(errs), errs[0].Error())
		}
	}

	backend := spirv.NewBackend(spirv.Options{
		Version: opts.SPIRVVersion,
		Debug:   opts.Debug,
	})
	spirvBytes, err := backend.Compile(module)
	if err != nil {
		return nil, fmt.Errorf("wasmgpu: generate: %w", err)
	}
	return spirvBytes, nil
}
