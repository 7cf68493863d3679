// Command fencerun runs an untrusted command inside a filesystem sandbox.
//
// Usage:
//
//	fencerun [--allow DIR]... [--read DIR]... [--deny DIR]... [--safe-home] -- command [args...]
//
// The sandbox backend is chosen automatically (macOS sandbox-exec, Linux
// bubblewrap, or docker) unless --backend names one explicitly. The confined
// command's exit code becomes fencerun's own exit code; engine failures use
// codes 3-6 so scripts can tell them apart from the command's exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/fencerun/fencerun"
	"github.com/fencerun/fencerun/backend"
	"github.com/fencerun/fencerun/backend/bwrap"
	"github.com/fencerun/fencerun/backend/docker"
	"github.com/fencerun/fencerun/backend/seatbelt"
	"github.com/fencerun/fencerun/seccomp"
)

// Engine-failure exit codes, distinct from anything the confined command is
// likely to use and from docker's reserved 125/126/127 range.
const (
	exitUsage              = 2
	exitPathResolution     = 3
	exitBackendUnavailable = 4
	exitPolicyRejected     = 5
	exitUnsupportedArch    = 6
)

func main() {
	code, err := run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fencerun:", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, args []string) (int, error) {
	var exitCode int

	cmd := &cli.Command{
		Name:  "fencerun",
		Usage: "Run a command inside a filesystem sandbox.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "allow",
				Usage: "Grant read-write access to a `DIR` subtree (created if missing)",
			},
			&cli.StringSliceFlag{
				Name:  "read",
				Usage: "Grant read-only access to a `DIR` subtree",
			},
			&cli.StringSliceFlag{
				Name:  "deny",
				Usage: "Hide a `DIR` subtree from the command",
			},
			&cli.BoolFlag{
				Name:  "safe-home",
				Usage: "Hide the home directory except the project and explicit grants",
			},
			&cli.StringFlag{
				Name:  "backend",
				Value: "auto",
				Usage: "Sandbox backend (auto|seatbelt|bwrap|docker)",
			},
			&cli.StringFlag{
				Name:  "project",
				Usage: "Project `DIR` the command works in (default: current directory)",
			},
			&cli.StringFlag{
				Name:  "image",
				Usage: "Container image for the docker backend",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Config `FILE` (default: user config dir)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "Log verbosity (debug|info|warn|error)",
			},
		},
		Commands: []*cli.Command{
			seccompGenCommand(),
			doctorCommand(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			code, err := runSandbox(ctx, c)
			exitCode = code
			return err
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		if exitCode == 0 {
			exitCode = classifyExit(err)
		}
		return exitCode, err
	}
	return exitCode, nil
}

// runSandbox is the default action: build the rule set, compile a policy, and
// run the trailing command inside it.
func runSandbox(ctx context.Context, c *cli.Command) (int, error) {
	logger := newLogger(c.String("log-level"))
	slog.SetDefault(logger)

	command := c.Args().Slice()
	if len(command) == 0 {
		return exitUsage, errors.New("missing command; usage: fencerun [options] -- command [args...]")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return exitUsage, err
	}

	rs := fencerun.NewRuleSet(logger)
	if err := cfg.ApplyTo(rs); err != nil {
		return exitPathResolution, err
	}
	for _, p := range c.StringSlice("allow") {
		if err := rs.Add(p, fencerun.ReadWrite); err != nil {
			return exitPathResolution, err
		}
	}
	for _, p := range c.StringSlice("read") {
		if err := rs.Add(p, fencerun.ReadOnly); err != nil {
			return exitPathResolution, err
		}
	}
	for _, p := range c.StringSlice("deny") {
		if err := rs.Add(p, fencerun.Deny); err != nil {
			return exitPathResolution, err
		}
	}

	opts := []fencerun.CompileOption{
		fencerun.WithLogger(logger),
		fencerun.WithSafeMode(c.Bool("safe-home") || cfg.SafeHome),
	}
	if kind := pickBackend(c, cfg); kind != "" {
		opts = append(opts, fencerun.WithBackend(fencerun.BackendKind(kind)))
	}
	if dir := c.String("project"); dir != "" {
		opts = append(opts, fencerun.WithProject(dir))
	}
	if image := pickImage(c, cfg); image != "" {
		opts = append(opts, fencerun.WithImage(image))
	}

	inv, err := fencerun.Compile(rs, opts...)
	if err != nil {
		return classifyExit(err), err
	}

	code, err := fencerun.Launch(ctx, inv, command)
	if err != nil {
		return classifyExit(err), err
	}
	return code, nil
}

// seccompGenCommand writes the persisted syscall-filter artifacts, one per
// supported architecture, for embedding in build pipelines.
func seccompGenCommand() *cli.Command {
	return &cli.Command{
		Name:  "seccomp-gen",
		Usage: "Write precompiled syscall filter artifacts to a directory.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Value: ".",
				Usage: "Output `DIR` for the .bpf artifacts",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			outDir := c.String("out")
			for _, arch := range []seccomp.Arch{seccomp.ArchAMD64, seccomp.ArchARM64} {
				prog, err := seccomp.Synthesize(arch)
				if err != nil {
					return err
				}
				name, err := seccomp.ArtifactName(arch)
				if err != nil {
					return err
				}
				path := filepath.Join(outDir, name)
				if err := prog.WriteFile(path); err != nil {
					return err
				}
				fmt.Printf("%s\t%d instructions, %d bytes\n",
					path, prog.InstructionCount(), prog.ByteLen())
			}
			return nil
		},
	}
}

// doctorCommand reports which backends are usable on this system.
func doctorCommand() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check sandbox backend availability on this system.",
		Action: func(ctx context.Context, c *cli.Command) error {
			backends := []backend.Backend{seatbelt.New(), bwrap.New(), docker.New()}
			unusable := 0
			for _, be := range backends {
				check := be.CheckDependencies()
				status := "ok"
				if !check.OK() {
					status = "unavailable"
					unusable++
				}
				fmt.Printf("%-10s %s\n", be.Name(), status)
				for _, e := range check.Errors {
					fmt.Printf("    error: %s\n", e)
				}
				for _, w := range check.Warnings {
					fmt.Printf("    warning: %s\n", w)
				}
			}
			if unusable == len(backends) {
				return fencerun.ErrNoBackend
			}
			return nil
		},
	}
}

func loadConfig(c *cli.Command) (*fencerun.Config, error) {
	if path := c.String("config"); path != "" {
		return fencerun.LoadConfig(path, true)
	}
	path, err := fencerun.DefaultConfigPath()
	if err != nil {
		// No user config dir: run with built-in defaults.
		return &fencerun.Config{}, nil
	}
	return fencerun.LoadConfig(path, false)
}

func pickBackend(c *cli.Command, cfg *fencerun.Config) string {
	if kind := c.String("backend"); kind != "" && kind != "auto" {
		return kind
	}
	return cfg.Backend
}

func pickImage(c *cli.Command, cfg *fencerun.Config) string {
	if image := c.String("image"); image != "" {
		return image
	}
	return cfg.Image
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// classifyExit maps engine errors to their reserved exit codes.
func classifyExit(err error) int {
	switch {
	case errors.Is(err, fencerun.ErrPathResolution):
		return exitPathResolution
	case errors.Is(err, fencerun.ErrUnsupportedArch):
		return exitUnsupportedArch
	case errors.Is(err, fencerun.ErrPolicyRejected):
		return exitPolicyRejected
	case errors.Is(err, fencerun.ErrBackendUnavailable), errors.Is(err, fencerun.ErrNoBackend):
		return exitBackendUnavailable
	default:
		return exitUsage
	}
}
