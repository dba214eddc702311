// Package cmds implements the command line interface of godbg.
package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/debugworks/godbg/pkg/config"
	"github.com/debugworks/godbg/pkg/logflags"
	"github.com/debugworks/godbg/pkg/proc"
	"github.com/debugworks/godbg/pkg/terminal"
	"github.com/debugworks/godbg/pkg/version"
	"github.com/debugworks/godbg/service/debugger"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// workingDir is the working directory for the launched target.
	workingDir string
	// disableASLR launches the target with address space randomization off.
	disableASLR bool
	// usePTY gives the target its own pseudo terminal.
	usePTY bool

	conf *config.Config
)

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	rootCommand := &cobra.Command{
		Use:   "godbg",
		Short: "Godbg is an instruction level debugger for Linux processes.",
		Long: `Godbg launches or attaches to a process and gives you full control over
its execution: set breakpoints, step by instruction, inspect and modify
registers and memory.`,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (debugger,proc,terminal).")
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor.")

	execCommand := &cobra.Command{
		Use:   "exec <path> [args...]",
		Short: "Execute a precompiled binary and begin a debug session.",
		Long: `Execute a precompiled binary and begin a debug session.

The target starts stopped at its entry point with a breakpoint session ready.`,
		Args: cobra.MinimumNArgs(1),
		Run:  execCmd,
	}
	execCommand.Flags().StringVar(&workingDir, "wd", "", "Working directory for running the program.")
	execCommand.Flags().BoolVar(&disableASLR, "disable-aslr", false, "Disables address space randomization.")
	execCommand.Flags().BoolVar(&usePTY, "tty", false, "Run the target under its own pseudo terminal.")
	rootCommand.AddCommand(execCommand)

	attachCommand := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach to a running process and begin a debug session.",
		Long: `Attach to an already running process and begin a debug session.

This command will cause godbg to take control of an already running process.
You will have to take care of stopping it cleanly afterwards, detach leaves
the process running.`,
		Args: cobra.ExactArgs(1),
		Run:  attachCmd,
	}
	rootCommand.AddCommand(attachCommand)

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Godbg Debugger\n%s\n", version.GodbgVersion)
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func execCmd(cmd *cobra.Command, args []string) {
	fullpath, err := filepath.Abs(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	processArgs := append([]string{fullpath}, args[1:]...)
	os.Exit(execute(0, processArgs))
}

func attachCmd(cmd *cobra.Command, args []string) {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pid: %s\n", args[0])
		os.Exit(1)
	}
	os.Exit(execute(pid, nil))
}

func execute(attachPid int, processArgs []string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	var flags proc.LaunchFlags
	if disableASLR || conf.DisableASLR {
		flags |= proc.LaunchDisableASLR
	}
	if usePTY || conf.UsePTY {
		flags |= proc.LaunchUsePTY
	}

	dbgConfig := debugger.Config{
		ProcessArgs:     processArgs,
		WorkingDir:      workingDir,
		AttachPid:       attachPid,
		LaunchFlags:     flags,
		SuppressSignals: conf.SuppressSignals,
		TargetOutputFn: func(line string) {
			fmt.Println(line)
		},
	}

	dbg, err := debugger.New(&dbgConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	term := terminal.New(dbg, conf)
	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}
