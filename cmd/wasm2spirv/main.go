// Command wasm2spirv compiles a WASM binary module into a SPIR-V compute
// shader.
//
// Usage:
//
//	wasm2spirv [options] <input>
//
// Examples:
//
//	wasm2spirv module.wasm                 # Compile to stdout
//	wasm2spirv -o module.spv module.wasm   # Compile to SPIR-V file
//	wasm2spirv -debug module.wasm          # Compile with debug info
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/gogpu/wasmgpu"
	"github.com/gogpu/wasmgpu/spirv"
)

var (
	output      = flag.String("o", "", "output file (default: stdout)")
	debugFlag   = flag.Bool("debug", false, "include debug info")
	validate    = flag.Bool("validate", true, "validate IR")
	versionFlag = flag.Bool("version", false, "print version")
)

// version returns the module version from build info.
func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Printf("wasm2spirv version %s\n", version())
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no input file specified")
		usage()
		os.Exit(1)
	}

	inputPath := args[0]

	wasmBytes, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	opts := wasmgpu.CompileOptions{
		SPIRVVersion: spirv.Version1_3,
		Debug:        *debugFlag,
		Validate:     *validate,
		Tuneables:    wasmgpu.DefaultOptions().Tuneables,
	}
	spirvBytes, err := wasmgpu.CompileWithOptions(wasmBytes, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation error: %v\n", err)
		os.Exit(1)
	}

	if *output != "" {
		if err := os.WriteFile(*output, spirvBytes, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Successfully compiled %s to %s (%d bytes)\n", inputPath, *output, len(spirvBytes))
	} else {
		if _, err := os.Stdout.Write(spirvBytes); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: wasm2spirv [options] <input.wasm>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  wasm2spirv module.wasm               Compile to stdout\n")
	fmt.Fprintf(os.Stderr, "  wasm2spirv -o module.spv module.wasm Compile to file\n")
	fmt.Fprintf(os.Stderr, "  wasm2spirv -debug module.wasm        Include debug info\n")
}
