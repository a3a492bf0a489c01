// Command teavm loads a .teax executable image and runs it on the
// register machine. A bare `teavm program.teax` invocation runs the
// image directly; `run`/`disasm` subcommands are also available.
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iannisdezwart/tea-sub000/internal/asm"
	"github.com/iannisdezwart/tea-sub000/internal/exe"
	"github.com/iannisdezwart/tea-sub000/internal/vm"
)

var debug bool

func main() {
	root := &cobra.Command{
		Use:   "teavm [program.teax]",
		Short: "tea register-machine VM",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runImage(args[0])
		},
	}
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "trace every instruction to stderr")

	root.AddCommand(runCmd(), disasmCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <program.teax>",
		Short: "run an executable image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(args[0])
		},
	}
}

func runImage(path string) error {
	img, err := exe.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	machine := vm.New(img)

	var exitCode uint64
	if debug {
		exitCode, err = machine.RunProgramDebugMode(os.Stderr)
	} else {
		exitCode, err = machine.RunProgram()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		os.Exit(1)
	}

	os.Exit(int(exitCode))
	return nil
}

// disasmCmd is a best-effort listing, not a faithful round-trip of the
// assembler: it walks the opcode table's own ArgTypes shape to skip each
// instruction's operand bytes and prints the raw bytes rather than
// resolved register names or fixed-up branch targets.
func disasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <program.teax>",
		Short: "list the instruction stream of an executable image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disasmImage(args[0])
		},
	}
}

func disasmImage(path string) error {
	img, err := exe.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	prog := img.Program
	off := 0
	for off+2 <= len(prog) {
		start := off
		op := asm.Opcode(binary.LittleEndian.Uint16(prog[off:]))
		off += 2

		argLen := 0
		for _, k := range op.ArgTypes() {
			switch k {
			case asm.ArgReg, asm.ArgLit8:
				argLen++
			case asm.ArgLit16:
				argLen += 2
			case asm.ArgLit32:
				argLen += 4
			case asm.ArgLit64, asm.ArgRelAddr:
				argLen += 8
			case asm.ArgCString:
				n := 0
				for off+argLen+n < len(prog) && prog[off+argLen+n] != 0 {
					n++
				}
				argLen += n + 1
			}
		}
		if off+argLen > len(prog) {
			fmt.Printf("%6d: %s <truncated operands>\n", start, op)
			break
		}
		fmt.Printf("%6d: %-20s % x\n", start, op, prog[off:off+argLen])
		off += argLen
	}
	return nil
}
