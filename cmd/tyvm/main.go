// Command tyvm runs and inspects compiled tyvm bytecode images.
//
// There is no surface-language parser in scope here (spec §1): an image is
// produced elsewhere by calling tyvm.Compile against a programmatically
// built AST, then written to disk. This binary only consumes that output.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	tyvm "tyvm/vm"
)

func newLogger(verbose bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		// Development config only fails to build on a bad encoder/output
		// setting, neither of which this command touches.
		panic(err)
	}
	return log.Sugar()
}

func loadImage(path string) (*tyvm.BytecodeImage, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image %q: %w", path, err)
	}
	img, err := tyvm.DecodeHeader(bin)
	if err != nil {
		return nil, fmt.Errorf("decoding image %q: %w", path, err)
	}
	return img, nil
}

func newRunCommand() *cobra.Command {
	var verbose bool
	var maxDepth, maxInstructions int
	cmd := &cobra.Command{
		Use:   "run <image> <source>",
		Short: "Run a compiled image and report type-checking diagnostics",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			imagePath, sourcePath := args[0], args[1]

			img, err := loadImage(imagePath)
			if err != nil {
				return err
			}
			code, err := os.ReadFile(sourcePath)
			if err != nil {
				return fmt.Errorf("reading source %q: %w", sourcePath, err)
			}

			log := newLogger(verbose)
			defer log.Sync() //nolint:errcheck

			module := tyvm.NewModule(img, sourcePath, string(code))
			vm := tyvm.NewVM(img, module, log, &tyvm.Options{
				MaxDepth:        maxDepth,
				MaxInstructions: maxInstructions,
			})
			if runErr := vm.Run(); runErr != nil {
				return fmt.Errorf("running %q: %w", imagePath, runErr)
			}

			fmt.Fprint(cmd.OutOrStdout(), module.PrintErrors())
			if len(module.Errors) > 0 {
				return errSilent{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level VM logging")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "recursion depth bound before degrading to ExcessivelyDeep (0 = default)")
	cmd.Flags().IntVar(&maxInstructions, "max-instructions", 0, "instruction budget before aborting a run (0 = default)")
	return cmd
}

func newDisasmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <image>",
		Short: "Print the decoded header and instructions of a compiled image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadImage(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tyvm.Disassemble(img))
			return nil
		},
	}
	return cmd
}

// errSilent carries a process exit code through cobra's error path without
// printing anything extra; the diagnostics have already been written.
type errSilent struct{ code int }

func (e errSilent) Error() string { return "" }

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tyvm",
		Short:         "Run and inspect compiled bytecode images for the structural type checker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newDisasmCommand())
	return root
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		code := 1
		if silent, ok := err.(errSilent); ok {
			code = silent.code
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(code)
	}
}
