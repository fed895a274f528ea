package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raymyers/ralph-lsra/pkg/config"
	"github.com/raymyers/ralph-lsra/pkg/regalloc"
	"github.com/raymyers/ralph-lsra/pkg/unitfile"
)

var version = "0.1.0"

// Command-line flags. Empty/zero values mean "not given" and leave the
// configuration file and environment in charge.
var (
	configPath       string
	targetFlag       string
	formatFlag       string
	traceFlag        string
	jobsFlag         int
	verifyFlag       bool
	noVerifyFlag     bool
	dLSRA            bool // dump the listing next to each input
	checkDeterminism bool
)

// ErrNondeterministic is returned when --check-determinism finds two runs
// over the same input disagreeing.
var ErrNondeterministic = errors.New("allocation is not deterministic")

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept single-dash dump flags like the other ralph tools
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// singleDashFlags lists flags that may be written with one dash
var singleDashFlags = []string{"dlsra"}

// normalizeFlags converts single-dash flags like -dlsra to --dlsra
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, flagName := range singleDashFlags {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-lsra [file...]",
		Short: "ralph-lsra runs linear-scan register allocation over event streams",
		Long: `ralph-lsra reads units described in YAML (registers, intervals and a
location-ordered stream of def/use/kill events), allocates registers in a
single linear pass and prints each event's register, reload, spill and
copy decisions.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				fmt.Fprintf(errOut, "ralph-lsra: %v\n", err)
				return err
			}
			for _, filename := range args {
				if err := doAllocate(cmd.Context(), filename, cfg, out, errOut); err != nil {
					return err
				}
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVar(&configPath, "config", "", "TOML configuration file")
	rootCmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Register inventory when a file names none (arm64, x64, tiny2)")
	rootCmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Output format: text, yaml or msgpack")
	rootCmd.Flags().StringVar(&traceFlag, "trace", "", "Decision trace level on stderr: off, error, phase, detail, debug")
	rootCmd.Flags().IntVarP(&jobsFlag, "jobs", "j", 0, "Units allocated in parallel (default GOMAXPROCS)")
	rootCmd.Flags().BoolVar(&verifyFlag, "verify", false, "Check register invariants after every event")
	rootCmd.Flags().BoolVar(&noVerifyFlag, "no-verify", false, "Skip invariant checking")
	rootCmd.Flags().BoolVar(&dLSRA, "dlsra", false, "Dump the annotated listing to <file>.lsra")
	rootCmd.Flags().BoolVar(&checkDeterminism, "check-determinism", false, "Allocate every unit twice and compare the results")

	return rootCmd
}

// loadConfig layers defaults, the config file, the environment and flags
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		if err := cfg.Load(configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.FromEnv(); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Target = targetFlag
	}
	if flags.Changed("format") {
		cfg.Format = formatFlag
	}
	if flags.Changed("trace") {
		cfg.Trace = traceFlag
	}
	if flags.Changed("jobs") {
		cfg.Jobs = jobsFlag
	}
	if verifyFlag {
		cfg.Verify = true
	}
	if noVerifyFlag {
		cfg.Verify = false
	}
	return cfg, cfg.Validate()
}

// doAllocate allocates every unit in filename and writes the results
func doAllocate(ctx context.Context, filename string, cfg config.Config, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	units, err := unitfile.Load(filename, cfg.Target)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-lsra: %v\n", err)
		return err
	}

	opts, err := cfg.Options()
	if err != nil {
		fmt.Fprintf(errOut, "ralph-lsra: %v\n", err)
		return err
	}
	if opts.TraceLevel != regalloc.TraceOff {
		opts.Trace = errOut
	}

	var clones []*regalloc.Unit
	if checkDeterminism {
		for _, u := range units {
			clones = append(clones, u.Clone())
		}
	}

	results, err := regalloc.AllocateAll(ctx, units, opts, cfg.Jobs)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-lsra: %s: %v\n", filename, err)
		return err
	}

	if checkDeterminism {
		opts.Trace = nil
		again, err := regalloc.AllocateAll(ctx, clones, opts, cfg.Jobs)
		if err != nil {
			fmt.Fprintf(errOut, "ralph-lsra: %s: %v\n", filename, err)
			return err
		}
		if !reflect.DeepEqual(results, again) {
			fmt.Fprintf(errOut, "ralph-lsra: %s: %v\n", filename, ErrNondeterministic)
			return ErrNondeterministic
		}
	}

	format, err := unitfile.ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-lsra: %v\n", err)
		return err
	}

	if dLSRA {
		var listing bytes.Buffer
		regalloc.NewPrinter(&listing).PrintResults(results)
		outputFilename := lsraOutputFilename(filename)
		if err := os.WriteFile(outputFilename, listing.Bytes(), 0o644); err != nil {
			fmt.Fprintf(errOut, "ralph-lsra: error creating %s: %v\n", outputFilename, err)
			return err
		}
	}

	return unitfile.Encode(out, format, results)
}

// lsraOutputFilename returns the output filename for -dlsra: input.yaml -> input.lsra
func lsraOutputFilename(filename string) string {
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, ext) {
			return filename[:len(filename)-len(ext)] + ".lsra"
		}
	}
	return filename + ".lsra"
}
