package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"

	"github.com/debugworks/godbg/pkg/config"
	"github.com/debugworks/godbg/pkg/logflags"
	"github.com/debugworks/godbg/pkg/proc"
	"github.com/debugworks/godbg/service/debugger"
)

const (
	historyFile = ".godbg_history"

	terminalHighlightEscapeCode = "\033[34m"
	terminalResetEscapeCode     = "\033[0m"
)

// exitRequested is returned by commands that should terminate the
// read-eval loop.
var exitRequested = errors.New("exit")

// Term represents the terminal running godbg.
type Term struct {
	client *debugger.Debugger
	conf   *config.Config
	prompt string
	line   *liner.State
	cmds   *Commands
	dumb   bool
	stdout io.Writer
}

// New returns a new Term.
func New(client *debugger.Debugger, conf *config.Config) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())

	var w io.Writer
	if dumb {
		w = os.Stdout
	} else {
		w = colorable.NewColorableStdout()
	}

	t := &Term{
		client: client,
		conf:   conf,
		prompt: "(godbg) ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: w,
	}

	if client != nil {
		client.SubscribeStopEvents(func(ev *proc.StopEvent) {
			logflags.TerminalLogger().Debugf("stop event: %s", ev)
		})
	}

	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// sigintGuard forwards SIGINT to the target so that a blocked continue
// returns with a signal stop instead of killing the debugger. It must not
// call anything that takes the debugger's command mutex: a continue in
// flight holds that mutex until the target stops, which is exactly when
// the user reaches for ctrl-C.
func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		fmt.Fprintf(t.stdout, "received SIGINT, forwarding to target\n")
		if err := t.client.Interrupt(); err != nil {
			fmt.Fprintf(os.Stderr, "could not interrupt target: %v\n", err)
		}
	}
}

// Run begins running godbg in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go t.sigintGuard(ch)

	t.line.SetCompleter(func(line string) (c []string) {
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					c = append(c, alias)
				}
			}
		}
		return
	})

	fullHistoryFile, err := config.GetConfigFilePath(t.historyFileName())
	if err != nil {
		fmt.Printf("Unable to load history file: %v.\n", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.\n", err)
		}
	}
	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}

	fmt.Println("Type 'help' for list of commands.")

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, errors.New("prompt for input failed")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if err == exitRequested {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// Println prints a line to the terminal, highlighting the prefix unless
// the terminal is dumb.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		prefix = terminalHighlightEscapeCode + prefix + terminalResetEscapeCode
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) historyFileName() string {
	if t.conf != nil && t.conf.HistoryFile != "" {
		return t.conf.HistoryFile
	}
	return historyFile
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func yesno(line *liner.State, question string) (bool, error) {
	for {
		answer, err := line.Prompt(question)
		if err != nil {
			return false, err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		switch answer {
		case "n", "no":
			return false, nil
		case "y", "yes", "":
			return true, nil
		}
	}
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(t.historyFileName())
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR|os.O_CREATE, 0600); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	if t.client == nil {
		return 0, nil
	}

	s := t.client.State()
	if s.Resumable() || s.Kind == proc.Running {
		kill := true
		if t.client.AttachedToExistingProcess() {
			answer, err := yesno(t.line, "Would you like to kill the process? [Y/n] ")
			if err != nil {
				return 2, io.EOF
			}
			kill = answer
		}
		if err := t.client.Detach(kill); err != nil {
			return 1, err
		}
	}
	return 0, nil
}
