//go:build linux

package debugger

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/debugworks/godbg/pkg/proc"
	"github.com/debugworks/godbg/pkg/proc/test"
)

func TestMain(m *testing.M) {
	status := m.Run()
	test.Clean()
	os.Exit(status)
}

func withDebugger(name string, t *testing.T, fn func(d *Debugger, fixture test.Fixture)) {
	t.Helper()
	fixture := test.BuildFixture(name)
	d, err := New(&Config{ProcessArgs: []string{fixture.Path}})
	if err != nil {
		t.Fatalf("debugger.New() failed: %v", err)
	}
	defer d.Kill()
	fn(d, fixture)
}

func TestNewRequiresTarget(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Fatal("expected error with neither process args nor attach pid")
	}
}

func TestNewRejectsUnknownSignalName(t *testing.T) {
	fixture := test.BuildFixture("trueexit")
	_, err := New(&Config{
		ProcessArgs:     []string{fixture.Path},
		SuppressSignals: []string{"SIGNOSUCH"},
	})
	if err == nil {
		t.Fatal("expected error for unknown signal name")
	}
}

func TestContinueUntil(t *testing.T) {
	withDebugger("loopprog", t, func(d *Debugger, fixture test.Fixture) {
		addr, err := test.SymbolAddr(fixture, "loop_body")
		if err != nil {
			t.Fatal(err)
		}

		ev, err := d.ContinueUntil(addr)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopBreakpoint || ev.Addr != addr {
			t.Fatalf("expected stop at %#x, got %s", addr, ev)
		}

		// The one-shot breakpoint must be gone: the next continue runs the
		// remaining loop iterations to completion.
		if len(d.Breakpoints()) != 0 {
			t.Fatal("one-shot breakpoint visible in breakpoint listing")
		}
		ev, err = d.Continue()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopExited {
			t.Fatalf("expected exit, got %s", ev)
		}
	})
}

func TestBreakpointListingSorted(t *testing.T) {
	withDebugger("loopprog", t, func(d *Debugger, fixture test.Fixture) {
		mainAddr, err := test.SymbolAddr(fixture, "main")
		if err != nil {
			t.Fatal(err)
		}
		loopAddr, err := test.SymbolAddr(fixture, "loop_body")
		if err != nil {
			t.Fatal(err)
		}

		for _, addr := range []uint64{mainAddr, loopAddr} {
			if _, err := d.CreateBreakpoint(addr); err != nil {
				t.Fatal(err)
			}
		}
		bps := d.Breakpoints()
		if len(bps) != 2 {
			t.Fatalf("expected 2 breakpoints, got %d", len(bps))
		}
		if bps[0].Addr > bps[1].Addr {
			t.Fatal("breakpoints not sorted by address")
		}
	})
}

func TestStopEventSubscription(t *testing.T) {
	withDebugger("trueexit", t, func(d *Debugger, fixture test.Fixture) {
		var events []*proc.StopEvent
		d.SubscribeStopEvents(func(ev *proc.StopEvent) {
			events = append(events, ev)
		})

		if _, err := d.Continue(); err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].Reason != proc.StopExited {
			t.Fatalf("expected one exit event, got %v", events)
		}
	})
}

func TestRegisterReadWrite(t *testing.T) {
	withDebugger("loopprog", t, func(d *Debugger, fixture test.Fixture) {
		pc, err := d.ProgramCounter()
		if err != nil {
			t.Fatal(err)
		}
		if pc == 0 {
			t.Fatal("program counter is zero")
		}

		regs, err := d.Registers(false)
		if err != nil {
			t.Fatal(err)
		}
		if len(regs) == 0 {
			t.Fatal("empty register list")
		}
	})
}

func TestRestartReplantsBreakpoints(t *testing.T) {
	withDebugger("loopprog", t, func(d *Debugger, fixture test.Fixture) {
		addr, err := test.SymbolAddr(fixture, "loop_body")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.CreateBreakpoint(addr); err != nil {
			t.Fatal(err)
		}

		oldPid := d.Pid()
		if err := d.Restart(nil); err != nil {
			t.Fatal(err)
		}
		if d.Pid() == oldPid {
			t.Fatal("restart did not produce a new process")
		}

		bps := d.Breakpoints()
		if len(bps) != 1 || bps[0].Addr != addr {
			t.Fatalf("breakpoint not re-planted after restart: %v", bps)
		}

		ev, err := d.Continue()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopBreakpoint || ev.Addr != addr {
			t.Fatalf("expected breakpoint hit after restart, got %s", ev)
		}
	})
}

func TestInterruptRunningTarget(t *testing.T) {
	withDebugger("sleepprog", t, func(d *Debugger, fixture test.Fixture) {
		type result struct {
			ev  *proc.StopEvent
			err error
		}
		done := make(chan result, 1)
		go func() {
			ev, err := d.Continue()
			done <- result{ev, err}
		}()

		// Continue holds the command mutex until the target stops, so the
		// interrupt has to get through without it.
		time.Sleep(100 * time.Millisecond)
		if err := d.Interrupt(); err != nil {
			t.Fatal(err)
		}

		select {
		case res := <-done:
			if res.err != nil {
				t.Fatal(res.err)
			}
			if res.ev.Reason != proc.StopSignal || res.ev.Signal != syscall.SIGINT {
				t.Fatalf("expected SIGINT stop, got %s", res.ev)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("target did not stop after interrupt")
		}
	})
}

func TestMemoryAccess(t *testing.T) {
	withDebugger("loopprog", t, func(d *Debugger, fixture test.Fixture) {
		addr, err := test.SymbolAddr(fixture, "scratch")
		if err != nil {
			t.Fatal(err)
		}

		data, err := d.ReadMemory(addr, 7)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "fixture" {
			t.Fatalf("unexpected memory contents %q", data)
		}

		if err := d.WriteMemory(addr, []byte("FIXTURE")); err != nil {
			t.Fatal(err)
		}
		data, err = d.ReadMemory(addr, 7)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "FIXTURE" {
			t.Fatalf("write not visible: %q", data)
		}
	})
}
