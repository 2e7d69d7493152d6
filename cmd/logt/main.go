package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"pkt.systems/psi"
	"pkt.systems/pslog"

	"logt/internal/annotate"
	"logt/internal/config"
	"logt/internal/supervisor"
	"logt/internal/version"
	"logt/pkg/stream"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	ctx = pslog.ContextWithLogger(ctx, newLogger(os.Stderr))
	return execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// newLogger writes to the same stderr as the child's annotated lines, so
// only errors are logged unless LOG_LEVEL asks for more.
func newLogger(w io.Writer) pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvWriter(w),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.ErrorLevel}),
	)
}

// invocation holds the flag values that are not config keys and the result
// of the run.
type invocation struct {
	configPath  string
	printConfig bool

	ran      bool
	exitCode int
}

// execute runs logt with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inv := &invocation{}
	root := newRootCmd(inv)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("logt failed")
		return exitCode(inv, err)
	}
	return inv.exitCode
}

func exitCode(inv *invocation, err error) int {
	var spawnErr *supervisor.SpawnError
	switch {
	case errors.As(err, &spawnErr):
		return spawnErr.ExitCode()
	case errors.Is(err, supervisor.ErrPipeSetup):
		return supervisor.ExitInternal
	case inv.ran && inv.exitCode != 0:
		return inv.exitCode
	default:
		return 1
	}
}

func newRootCmd(inv *invocation) *cobra.Command {
	root := &cobra.Command{
		Use:   "logt [flags] <command> [args...]",
		Short: "Prefix every output line of a command with the time it was written",
		Long: `logt runs a command and prefixes every line it writes to stdout and
stderr with the time the line was written. Lines stay on the stream they
were written to. stdin is passed to the command unchanged, and logt exits
with the exit code of the command.

Flags are only parsed up to the command, everything after it is passed to
the command verbatim.

Settings can also be given as environment variables (LOGT_RELATIVE,
LOGT_SHOW_STREAM, LOGT_UTC, LOGT_TIME_FORMAT, LOGT_COLOR, LOGT_LOSSY,
LOGT_BUFFER) or in a YAML config file (default: $XDG_CONFIG_HOME/logt/config.yaml).`,
		Example: `  logt make
  logt -r -s -- ./build.sh --verbose`,
		Version:       version.Current(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if inv.printConfig || len(args) > 0 {
				return nil
			}
			return errors.New("no command given, see logt --help")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, inv, args)
		},
	}
	root.SetVersionTemplate("logt {{.Version}}\n")

	flags := root.Flags()
	flags.SetInterspersed(false)
	flags.BoolP("relative", "r", false, "Show the time since the start of the command instead of the wall-clock time")
	flags.BoolP("show-stream", "s", false, "Show the name of the output stream (stdout / stderr)")
	flags.Bool("utc", false, "Show wall-clock times in UTC instead of local time")
	flags.String("time-format", config.DefaultTimeFormat, "Go time layout for wall-clock times")
	flags.String("color", string(config.ColorAuto), "Colour annotations: auto, always or never")
	flags.Bool("lossy", false, "Replace invalid UTF-8 instead of reporting the line as an error")
	flags.Int("buffer", 0, "Number of lines buffered between the readers and the output (0: default)")
	flags.StringVar(&inv.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/logt/config.yaml)")
	flags.BoolVar(&inv.printConfig, "print-config", false, "Print the effective configuration as YAML and exit")

	return root
}

func run(cmd *cobra.Command, inv *invocation, args []string) error {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v, inv.configPath)
	if err != nil {
		return err
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if inv.printConfig {
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	}

	var opts []annotate.Option
	if cfg.Color.Enabled(stdout) {
		opts = append(opts, annotate.WithColor(stream.Stdout))
	}
	if cfg.Color.Enabled(stderr) {
		opts = append(opts, annotate.WithColor(stream.Stderr))
	}

	result, err := supervisor.Run(cmd.Context(), args, supervisor.Options{
		Stdin:     cmd.InOrStdin(),
		Stdout:    stdout,
		Stderr:    stderr,
		Formatter: annotate.New(cfg.Format, opts...),
		Read:      stream.ReadOptions{Lossy: cfg.Lossy},
		Buffer:    cfg.Buffer,
	})
	if result.PID != 0 {
		inv.ran = true
		inv.exitCode = result.ExitCode
	}
	return err
}
