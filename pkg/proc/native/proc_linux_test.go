//go:build linux

package native

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	sys "golang.org/x/sys/unix"

	"github.com/debugworks/godbg/pkg/logflags"
	"github.com/debugworks/godbg/pkg/proc"
	"github.com/debugworks/godbg/pkg/proc/test"
)

func TestMain(m *testing.M) {
	status := m.Run()
	test.Clean()
	os.Exit(status)
}

func withTestProcess(name string, t *testing.T, fn func(p proc.Process, fixture test.Fixture)) {
	t.Helper()
	fixture := test.BuildFixture(name)
	p, err := Launch([]string{fixture.Path}, ".", 0, nil)
	if err != nil {
		t.Fatalf("Launch() failed: %v", err)
	}
	defer p.Kill()
	fn(p, fixture)
}

func symAddr(t *testing.T, fixture test.Fixture, name string) uint64 {
	t.Helper()
	addr, err := test.SymbolAddr(fixture, name)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func assertStopped(t *testing.T, p proc.Process) {
	t.Helper()
	if st := p.State(); st.Kind != proc.Stopped {
		t.Fatalf("expected stopped process, got %s", st.Kind)
	}
}

func TestLaunchStopsAtEntry(t *testing.T) {
	withTestProcess("trueexit", t, func(p proc.Process, fixture test.Fixture) {
		assertStopped(t, p)
		pc, err := p.PC()
		if err != nil {
			t.Fatal(err)
		}
		if pc == 0 {
			t.Fatal("program counter is zero after launch")
		}
	})
}

func TestResumeUntilExit(t *testing.T) {
	withTestProcess("trueexit", t, func(p proc.Process, fixture test.Fixture) {
		ev, err := p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopExited {
			t.Fatalf("expected exit event, got %s", ev)
		}
		if ev.ExitStatus != 0 {
			t.Fatalf("expected exit status 0, got %d", ev.ExitStatus)
		}
		if st := p.State(); st.Kind != proc.Exited {
			t.Fatalf("expected exited state, got %s", st.Kind)
		}
	})
}

func TestOperationsAfterExit(t *testing.T) {
	withTestProcess("trueexit", t, func(p proc.Process, fixture test.Fixture) {
		if _, err := p.Resume(); err != nil {
			t.Fatal(err)
		}
		var exitErr proc.ProcessExitedError

		_, err := p.Resume()
		if !errors.As(err, &exitErr) {
			t.Fatalf("expected ProcessExitedError from Resume, got %v", err)
		}
		_, err = p.SetBreakpoint(0x400000)
		if !errors.As(err, &exitErr) {
			t.Fatalf("expected ProcessExitedError from SetBreakpoint, got %v", err)
		}
		_, err = p.Registers()
		if !errors.As(err, &exitErr) {
			t.Fatalf("expected ProcessExitedError from Registers, got %v", err)
		}
		buf := make([]byte, 8)
		_, err = p.ReadMemory(buf, 0x400000)
		if !errors.As(err, &exitErr) {
			t.Fatalf("expected ProcessExitedError from ReadMemory, got %v", err)
		}
	})
}

func TestBreakpoint(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		addr := symAddr(t, fixture, "loop_body")
		bp, err := p.SetBreakpoint(addr)
		if err != nil {
			t.Fatal(err)
		}
		if bp.Addr != addr {
			t.Fatalf("breakpoint address %#x, expected %#x", bp.Addr, addr)
		}

		ev, err := p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopBreakpoint {
			t.Fatalf("expected breakpoint event, got %s", ev)
		}
		if ev.Addr != addr {
			t.Fatalf("stopped at %#x, expected %#x", ev.Addr, addr)
		}

		pc, err := p.PC()
		if err != nil {
			t.Fatal(err)
		}
		if pc != addr {
			t.Fatalf("pc %#x after breakpoint hit, expected %#x", pc, addr)
		}

		// After clearing, the remaining iterations run undisturbed.
		if _, err := p.ClearBreakpoint(addr); err != nil {
			t.Fatal(err)
		}
		ev, err = p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopExited {
			t.Fatalf("expected exit after clear, got %s", ev)
		}
	})
}

func TestBreakpointHitCount(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		addr := symAddr(t, fixture, "loop_body")
		bp, err := p.SetBreakpoint(addr)
		if err != nil {
			t.Fatal(err)
		}

		// loop_body runs three times, then the program exits.
		for i := 0; i < 3; i++ {
			ev, err := p.Resume()
			if err != nil {
				t.Fatal(err)
			}
			if ev.Reason != proc.StopBreakpoint {
				t.Fatalf("hit %d: expected breakpoint event, got %s", i, ev)
			}
		}
		if bp.TotalHitCount != 3 {
			t.Fatalf("expected 3 hits, got %d", bp.TotalHitCount)
		}

		ev, err := p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopExited {
			t.Fatalf("expected exit after last hit, got %s", ev)
		}
	})
}

func TestClearBreakpointRestoresMemory(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		addr := symAddr(t, fixture, "loop_body")

		original, err := proc.ReadBytes(p, addr, p.Arch().BreakpointSize())
		if err != nil {
			t.Fatal(err)
		}

		if _, err := p.SetBreakpoint(addr); err != nil {
			t.Fatal(err)
		}
		patched, err := proc.ReadBytes(p, addr, p.Arch().BreakpointSize())
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(patched, p.Arch().BreakpointInstruction()) {
			t.Fatalf("trap instruction not present at %#x: %x", addr, patched)
		}

		if _, err := p.ClearBreakpoint(addr); err != nil {
			t.Fatal(err)
		}
		restored, err := proc.ReadBytes(p, addr, p.Arch().BreakpointSize())
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(restored, original) {
			t.Fatalf("original instruction not restored: got %x, expected %x", restored, original)
		}
	})
}

func TestDuplicateBreakpoint(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		addr := symAddr(t, fixture, "loop_body")
		if _, err := p.SetBreakpoint(addr); err != nil {
			t.Fatal(err)
		}
		_, err := p.SetBreakpoint(addr)
		var exists proc.BreakpointExistsError
		if !errors.As(err, &exists) {
			t.Fatalf("expected BreakpointExistsError, got %v", err)
		}
	})
}

func TestDisabledBreakpointNotHit(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		addr := symAddr(t, fixture, "loop_body")
		if _, err := p.SetBreakpoint(addr); err != nil {
			t.Fatal(err)
		}
		if err := p.DisableBreakpoint(addr); err != nil {
			t.Fatal(err)
		}
		ev, err := p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopExited {
			t.Fatalf("expected the program to run to completion, got %s", ev)
		}
	})
}

func TestStepInstruction(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		before, err := p.PC()
		if err != nil {
			t.Fatal(err)
		}
		ev, err := p.StepInstruction()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopStep {
			t.Fatalf("expected step event, got %s", ev)
		}
		after, err := p.PC()
		if err != nil {
			t.Fatal(err)
		}
		if after == before {
			t.Fatalf("pc did not advance past %#x", before)
		}
	})
}

func TestStepOverBreakpoint(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		addr := symAddr(t, fixture, "loop_body")
		if _, err := p.SetBreakpoint(addr); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Resume(); err != nil {
			t.Fatal(err)
		}

		// Stepping off the breakpoint must not re-trigger it.
		ev, err := p.StepInstruction()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopStep {
			t.Fatalf("expected step event, got %s", ev)
		}
		pc, err := p.PC()
		if err != nil {
			t.Fatal(err)
		}
		if pc == addr {
			t.Fatal("pc did not move off the breakpoint")
		}

		// The trap must be back for the next pass through the loop.
		ev, err = p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopBreakpoint || ev.Addr != addr {
			t.Fatalf("expected second breakpoint hit at %#x, got %s", addr, ev)
		}
	})
}

func TestReadWriteMemory(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		addr := symAddr(t, fixture, "scratch")

		data, err := proc.ReadBytes(p, addr, 22)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "fixture scratch buffer" {
			t.Fatalf("unexpected scratch contents: %q", data)
		}

		newData := []byte("patched by the tracer!")
		if _, err := p.WriteMemory(addr, newData); err != nil {
			t.Fatal(err)
		}
		data, err = proc.ReadBytes(p, addr, len(newData))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, newData) {
			t.Fatalf("write not visible: %q", data)
		}
	})
}

func TestReadMemoryFault(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		buf := make([]byte, 8)
		_, err := p.ReadMemory(buf, 0x1)
		var fault proc.MemoryFaultError
		if !errors.As(err, &fault) {
			t.Fatalf("expected MemoryFaultError, got %v", err)
		}
	})
}

func scratchRegister() string {
	switch runtime.GOARCH {
	case "amd64":
		return "r15"
	case "arm64":
		return "x15"
	case "riscv64":
		return "t3"
	}
	return ""
}

func TestRegisterRoundTrip(t *testing.T) {
	reg := scratchRegister()
	if reg == "" {
		t.Skipf("no scratch register for %s", runtime.GOARCH)
	}
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		const magic = 0xdeadbeefcafef00d
		if err := p.SetRegister(reg, magic); err != nil {
			t.Fatal(err)
		}
		regs, err := p.Registers()
		if err != nil {
			t.Fatal(err)
		}
		val, err := regs.Get(reg)
		if err != nil {
			t.Fatal(err)
		}
		if val != magic {
			t.Fatalf("register %s = %#x, expected %#x", reg, val, uint64(magic))
		}
	})
}

func TestUnknownRegister(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		err := p.SetRegister("bogus", 1)
		var unknown proc.UnknownRegisterError
		if !errors.As(err, &unknown) {
			t.Fatalf("expected UnknownRegisterError, got %v", err)
		}
	})
}

func TestRegisterSlice(t *testing.T) {
	withTestProcess("loopprog", t, func(p proc.Process, fixture test.Fixture) {
		regs, err := p.Registers()
		if err != nil {
			t.Fatal(err)
		}
		slice, err := regs.Slice(false)
		if err != nil {
			t.Fatal(err)
		}
		if len(slice) == 0 {
			t.Fatal("empty register slice")
		}
		for _, name := range p.Arch().RegisterNames() {
			if _, ok := proc.FindRegister(slice, name); !ok {
				t.Fatalf("register %s missing from slice", name)
			}
		}
	})
}

func TestSignalDelivery(t *testing.T) {
	withTestProcess("sigprog", t, func(p proc.Process, fixture test.Fixture) {
		ev, err := p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopSignal || ev.Signal != syscall.SIGUSR1 {
			t.Fatalf("expected SIGUSR1 stop, got %s", ev)
		}

		// The signal is re-delivered on resume, the handler runs and the
		// program exits normally.
		ev, err = p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopExited || ev.ExitStatus != 42 {
			t.Fatalf("expected exit with status 42, got %s", ev)
		}
	})
}

func TestSignalSuppression(t *testing.T) {
	withTestProcess("sigprog", t, func(p proc.Process, fixture test.Fixture) {
		p.SuppressSignal(syscall.SIGUSR1, true)

		ev, err := p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopSignal || ev.Signal != syscall.SIGUSR1 {
			t.Fatalf("expected SIGUSR1 stop, got %s", ev)
		}

		ev, err = p.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Reason != proc.StopExited || ev.ExitStatus != 42 {
			t.Fatalf("expected exit with status 42, got %s", ev)
		}
	})
}

func TestKill(t *testing.T) {
	withTestProcess("sleepprog", t, func(p proc.Process, fixture test.Fixture) {
		if err := p.Kill(); err != nil {
			t.Fatal(err)
		}
		st := p.State()
		if st.Kind != proc.Terminated {
			t.Fatalf("expected terminated state, got %s", st.Kind)
		}
		if st.Signal != syscall.SIGKILL {
			t.Fatalf("expected SIGKILL, got %s", st.Signal)
		}

		var termErr proc.ProcessTerminatedError
		if _, err := p.Resume(); !errors.As(err, &termErr) {
			t.Fatalf("expected ProcessTerminatedError, got %v", err)
		}
	})
}

func TestAttachDetach(t *testing.T) {
	fixture := test.BuildFixture("sleepprog")
	cmd := exec.Command(fixture.Path)
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()

	// Give the child time to reach its sleep loop.
	time.Sleep(100 * time.Millisecond)

	p, err := Attach(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}
	assertStopped(t, p)
	if p.Pid() != cmd.Process.Pid {
		t.Fatalf("pid mismatch: %d != %d", p.Pid(), cmd.Process.Pid)
	}

	if err := p.Detach(); err != nil {
		t.Fatal(err)
	}

	var detachedErr proc.ProcessDetachedError
	if _, err := p.Resume(); !errors.As(err, &detachedErr) {
		t.Fatalf("expected ProcessDetachedError, got %v", err)
	}
}

func TestAttachNonExistentPid(t *testing.T) {
	_, err := Attach(1 << 30)
	var attachErr proc.AttachFailureError
	if !errors.As(err, &attachErr) {
		t.Fatalf("expected AttachFailureError, got %v", err)
	}
}

func TestTargetOutputStreaming(t *testing.T) {
	fixture := test.BuildFixture("loopprog")
	lines := make(chan string, 16)
	p, err := Launch([]string{fixture.Path}, ".", proc.LaunchUsePTY, func(line string) {
		lines <- line
	})
	if err != nil {
		t.Fatalf("Launch() failed: %v", err)
	}
	defer p.Kill()

	ev, err := p.Resume()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Reason != proc.StopExited {
		t.Fatalf("expected exit, got %s", ev)
	}

	select {
	case line := <-lines:
		if line != "counter=3" {
			t.Fatalf("unexpected target output %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for target output")
	}
}

func TestStartupTeardownReapsChild(t *testing.T) {
	fixture := test.BuildFixture("sleepprog")
	p, err := Launch([]string{fixture.Path}, ".", 0, nil)
	if err != nil {
		t.Fatalf("Launch() failed: %v", err)
	}
	dbp := p.(*nativeProcess)
	pid := dbp.pid

	dbp.teardownStartup(true)

	if err := sys.Kill(pid, 0); err != sys.ESRCH {
		t.Fatalf("child pid %d still exists after teardown: %v", pid, err)
	}
	if st := p.State(); st.Kind != proc.Terminated {
		t.Fatalf("expected terminated state, got %s", st.Kind)
	}
}

func TestProcLoggerPicksUpSetup(t *testing.T) {
	if err := logflags.Setup(true, "proc", ""); err != nil {
		t.Fatal(err)
	}
	if lvl := procLog().Logger.Level; lvl != logrus.DebugLevel {
		t.Fatalf("proc logger level %s after enabling proc logging", lvl)
	}
}
