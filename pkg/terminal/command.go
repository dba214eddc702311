// Package terminal implements functions for responding to user input and
// dispatching to the appropriate session commands.
package terminal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/debugworks/godbg/pkg/proc"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

// Returns true if the command string matches one of the aliases for this
// command.
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the terminal process.
type Commands struct {
	cmds []command
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"break", "b"}, cmdFn: breakpoint, helpMsg: `Sets a breakpoint.

	break <address>`},
		{aliases: []string{"clear"}, cmdFn: clearBreakpoint, helpMsg: `Deletes a breakpoint, restoring the original instruction.

	clear <address>`},
		{aliases: []string{"breakpoints", "bp"}, cmdFn: breakpoints, helpMsg: "Print out info for active breakpoints."},
		{aliases: []string{"enable"}, cmdFn: enableBreakpoint, helpMsg: `Re-arms a disabled breakpoint.

	enable <address>`},
		{aliases: []string{"disable"}, cmdFn: disableBreakpoint, helpMsg: `Lifts a breakpoint without forgetting it.

	disable <address>`},
		{aliases: []string{"continue", "c"}, cmdFn: cont, helpMsg: "Run until breakpoint, signal or program termination."},
		{aliases: []string{"step", "si", "s"}, cmdFn: step, helpMsg: "Single step a single cpu instruction."},
		{aliases: []string{"until", "u"}, cmdFn: continueUntil, helpMsg: `Runs until the given address is reached.

	until <address>

Internally a one-shot breakpoint is planted at the address and removed once hit.`},
		{aliases: []string{"regs"}, cmdFn: regs, helpMsg: `Print contents of CPU registers.

	regs [-a]

-a includes the floating point registers.`},
		{aliases: []string{"print", "p"}, cmdFn: printRegister, helpMsg: `Print the value of a single register.

	print <register>`},
		{aliases: []string{"set"}, cmdFn: setRegister, helpMsg: `Changes the value of a register.

	set <register> <value>`},
		{aliases: []string{"examine", "x"}, cmdFn: examineMemory, helpMsg: `Examine memory.

	examine <address> <length>`},
		{aliases: []string{"write-memory", "w"}, cmdFn: writeMemory, helpMsg: `Write bytes to target memory.

	write-memory <address> <byte> [<byte> ...]

Bytes are hexadecimal, e.g: write-memory 0x401000 90 90.`},
		{aliases: []string{"restart", "r"}, cmdFn: restart, helpMsg: `Restart the launched process.

	restart [newargs...]

Breakpoints are re-planted in the new process.`},
		{aliases: []string{"state", "st"}, cmdFn: state, helpMsg: "Print the lifecycle state of the target process."},
		{aliases: []string{"kill"}, cmdFn: kill, helpMsg: "Terminate the target process unconditionally."},
		{aliases: []string{"detach"}, cmdFn: detach, helpMsg: "Release the target process and exit."},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the debugger."},
	}

	return c
}

// Merge takes aliases defined in the config struct and merges them with
// the default command set.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var errNoCmd = errors.New("command not available")

// Call takes a command and a Term, finds the command in the table and
// executes it.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	for _, v := range c.cmds {
		if v.match(cmdname) {
			return v.cmdFn(t, args)
		}
	}
	return errNoCmd
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			if cmd.match(args) {
				fmt.Fprintln(t.stdout, cmd.helpMsg)
				return nil
			}
		}
		return errNoCmd
	}
	fmt.Fprintln(t.stdout, "The following commands are available:")
	w := tabwriter.NewWriter(t.stdout, 0, 8, 0, '\t', 0)
	for _, cmd := range c.cmds {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}
	return w.Flush()
}

func parseAddr(arg string) (uint64, error) {
	if arg == "" {
		return 0, fmt.Errorf("address required")
	}
	addr, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", arg)
	}
	return addr, nil
}

func breakpoint(t *Term, args string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	bp, err := t.client.CreateBreakpoint(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Breakpoint set at %#x\n", bp.Addr)
	return nil
}

func clearBreakpoint(t *Term, args string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	bp, err := t.client.ClearBreakpoint(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Breakpoint cleared at %#x\n", bp.Addr)
	return nil
}

func breakpoints(t *Term, args string) error {
	bps := t.client.Breakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(t.stdout, "No breakpoints set.")
		return nil
	}
	for _, bp := range bps {
		state := "enabled"
		if !bp.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(t.stdout, "breakpoint at %#x (%s, hit %d times)\n", bp.Addr, state, bp.TotalHitCount)
	}
	return nil
}

func enableBreakpoint(t *Term, args string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	return t.client.EnableBreakpoint(addr)
}

func disableBreakpoint(t *Term, args string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	return t.client.DisableBreakpoint(addr)
}

func cont(t *Term, args string) error {
	ev, err := t.client.Continue()
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, ev)
	return nil
}

func step(t *Term, args string) error {
	ev, err := t.client.Step()
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, ev)
	return nil
}

func continueUntil(t *Term, args string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	ev, err := t.client.ContinueUntil(addr)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, ev)
	return nil
}

func regs(t *Term, args string) error {
	includeFp := args == "-a"
	regs, err := t.client.Registers(includeFp)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		fmt.Fprintf(t.stdout, "%15s = %s\n", reg.Name, reg.Value)
	}
	return nil
}

func printRegister(t *Term, args string) error {
	if args == "" {
		return fmt.Errorf("register name required")
	}
	val, err := t.client.ReadRegister(strings.ToLower(args))
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%#x\n", val)
	return nil
}

func setRegister(t *Term, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return fmt.Errorf("usage: set <register> <value>")
	}
	value, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q", fields[1])
	}
	return t.client.WriteRegister(strings.ToLower(fields[0]), value)
}

func examineMemory(t *Term, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return fmt.Errorf("usage: examine <address> <length>")
	}
	addr, err := parseAddr(fields[0])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(fields[1])
	if err != nil || length <= 0 {
		return fmt.Errorf("invalid length %q", fields[1])
	}
	mem, err := t.client.ReadMemory(addr, length)
	if err != nil {
		return err
	}
	for i := 0; i < len(mem); i += 16 {
		end := i + 16
		if end > len(mem) {
			end = len(mem)
		}
		fmt.Fprintf(t.stdout, "%#016x:", addr+uint64(i))
		for _, b := range mem[i:end] {
			fmt.Fprintf(t.stdout, " %02x", b)
		}
		fmt.Fprintln(t.stdout)
	}
	return nil
}

func writeMemory(t *Term, args string) error {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return fmt.Errorf("usage: write-memory <address> <byte> [<byte> ...]")
	}
	addr, err := parseAddr(fields[0])
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(fields)-1)
	for _, f := range fields[1:] {
		b, err := strconv.ParseUint(strings.TrimPrefix(f, "0x"), 16, 8)
		if err != nil {
			return fmt.Errorf("invalid byte %q", f)
		}
		data = append(data, byte(b))
	}
	if err := t.client.WriteMemory(addr, data); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Wrote %d bytes at %#x\n", len(data), addr)
	return nil
}

func restart(t *Term, args string) error {
	var newArgs []string
	if args != "" {
		v, err := argv.Argv(args, func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in %q", s)
		}, nil)
		if err != nil {
			return err
		}
		if len(v) != 1 {
			return fmt.Errorf("illegal commandline %q", args)
		}
		newArgs = v[0]
	}
	if err := t.client.Restart(newArgs); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Process restarted with pid %d\n", t.client.Pid())
	return nil
}

func state(t *Term, args string) error {
	st := t.client.State()
	switch st.Kind {
	case proc.Exited:
		fmt.Fprintf(t.stdout, "%s (status %d)\n", st.Kind, st.ExitStatus)
	case proc.Terminated:
		fmt.Fprintf(t.stdout, "%s (signal %s)\n", st.Kind, st.Signal)
	case proc.Stopped:
		if st.StopEvent != nil {
			fmt.Fprintf(t.stdout, "%s (%s)\n", st.Kind, st.StopEvent)
		} else {
			fmt.Fprintln(t.stdout, st.Kind)
		}
	default:
		fmt.Fprintln(t.stdout, st.Kind)
	}
	return nil
}

func kill(t *Term, args string) error {
	if err := t.client.Kill(); err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, "Process killed.")
	return nil
}

func detach(t *Term, args string) error {
	if err := t.client.Detach(false); err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, "Detached from process.")
	return exitRequested
}

func exitCommand(t *Term, args string) error {
	return exitRequested
}
