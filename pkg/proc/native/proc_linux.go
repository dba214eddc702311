//go:build linux

package native

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/creack/pty"
	sys "golang.org/x/sys/unix"

	"github.com/debugworks/godbg/pkg/proc"
)

const (
	personalityGetPersonality = 0xffffffff // argument to pass to personality syscall to get the current personality
	_ADDR_NO_RANDOMIZE        = 0x0040000  // ADDR_NO_RANDOMIZE linux constant
)

// Launch creates and begins debugging a new process. First entry in cmd is
// the program to run, the rest are its arguments. The child is configured
// to be traced and stops at its exec trap, before any user code has run.
//
// With proc.LaunchUsePTY the child runs under a fresh pseudo-terminal and
// its merged stdout/stderr is streamed, line by line, to outputFn.
func Launch(cmd []string, wd string, flags proc.LaunchFlags, outputFn func(string)) (proc.Process, error) {
	if len(cmd) == 0 {
		return nil, proc.LaunchFailureError{Path: "", Err: fmt.Errorf("empty command")}
	}

	dbp := newProcess(0)

	var (
		process *exec.Cmd
		ptmx    *os.File
		tts     *os.File
		err     error
	)
	dbp.execPtraceFunc(func() {
		if flags&proc.LaunchDisableASLR != 0 {
			oldPersonality, _, perr := syscall.Syscall(sys.SYS_PERSONALITY, personalityGetPersonality, 0, 0)
			if perr == syscall.Errno(0) {
				newPersonality := oldPersonality | _ADDR_NO_RANDOMIZE
				syscall.Syscall(sys.SYS_PERSONALITY, newPersonality, 0, 0)
				defer syscall.Syscall(sys.SYS_PERSONALITY, oldPersonality, 0, 0)
			}
		}

		process = exec.Command(cmd[0])
		process.Args = cmd
		if wd != "" {
			process.Dir = wd
		}
		if flags&proc.LaunchUsePTY != 0 {
			ptmx, tts, err = pty.Open()
			if err != nil {
				return
			}
			process.Stdin = tts
			process.Stdout = tts
			process.Stderr = tts
			process.SysProcAttr = &syscall.SysProcAttr{
				Ptrace:  true,
				Setsid:  true,
				Setctty: true,
			}
		} else {
			process.Stdin = os.Stdin
			process.Stdout = os.Stdout
			process.Stderr = os.Stderr
			process.SysProcAttr = &syscall.SysProcAttr{
				Ptrace:  true,
				Setpgid: true,
			}
		}
		err = process.Start()
	})
	if tts != nil {
		// The child owns the tty side now.
		tts.Close()
	}
	if err != nil {
		if ptmx != nil {
			ptmx.Close()
		}
		dbp.release()
		return nil, proc.LaunchFailureError{Path: cmd[0], Err: err}
	}

	dbp.pid = process.Process.Pid
	dbp.cmd = process
	dbp.childProcess = true
	dbp.ptmx = ptmx
	if ptmx != nil && outputFn != nil {
		go streamTargetOutput(ptmx, outputFn)
	}

	// The exec trap: the child receives a SIGTRAP once the new program
	// image is loaded.
	if _, _, err = dbp.wait(dbp.pid, 0); err != nil {
		dbp.teardownStartup(true)
		return nil, proc.LaunchFailureError{Path: cmd[0], Err: fmt.Errorf("waiting for target execve failed: %s", err)}
	}
	if err := dbp.initialize(); err != nil {
		dbp.teardownStartup(true)
		return nil, proc.LaunchFailureError{Path: cmd[0], Err: err}
	}
	procLog().Debugf("launched %v as pid %d", cmd, dbp.pid)
	return dbp, nil
}

// Attach attaches trace control to a running process with the given PID.
func Attach(pid int) (proc.Process, error) {
	dbp := newProcess(pid)

	var err error
	dbp.execPtraceFunc(func() { err = ptraceAttach(dbp.pid) })
	if err != nil {
		dbp.release()
		return nil, proc.AttachFailureError{Pid: pid, Err: err}
	}
	if _, _, err = dbp.wait(dbp.pid, 0); err != nil {
		dbp.release()
		return nil, proc.AttachFailureError{Pid: pid, Err: err}
	}
	if err := dbp.initialize(); err != nil {
		dbp.teardownStartup(false)
		return nil, proc.AttachFailureError{Pid: pid, Err: err}
	}
	procLog().Debugf("attached to pid %d", pid)
	return dbp, nil
}

// teardownStartup cleans up after a launch or attach that failed past the
// point where the child exists. A launched child is killed and reaped, an
// attach target is detached and left running. Either way the ptrace service
// goroutine and any open files are released.
func (dbp *nativeProcess) teardownStartup(kill bool) {
	if !kill {
		dbp.execPtraceFunc(func() { _ = ptraceDetach(dbp.pid, 0) })
		dbp.detached = true
		dbp.release()
		return
	}
	_ = sys.Kill(dbp.pid, sys.SIGKILL)
	dbp.execPtraceFunc(func() { _ = ptraceCont(dbp.pid, 0) })
	for {
		wpid, status, err := dbp.wait(dbp.pid, 0)
		if err != nil {
			break
		}
		if wpid == dbp.pid && (status.Exited() || status.Signaled()) {
			break
		}
	}
	dbp.termSignal = sys.SIGKILL
	dbp.postExit(proc.Terminated)
}

// initialize is called once the freshly launched or attached process is in
// its first trace stop.
func (dbp *nativeProcess) initialize() error {
	arch, err := proc.ArchFromGOARCH(runtime.GOARCH)
	if err != nil {
		return err
	}
	dbp.arch = arch
	dbp.state = proc.Stopped

	// Memory access prefers the proc memory file; the accessor falls back
	// to process_vm and then to word-at-a-time peek/poke if this open
	// failed or a transfer through it fails later.
	memFile, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", dbp.pid), os.O_RDWR, 0)
	if err == nil {
		dbp.memFile = memFile
	} else {
		procLog().Debugf("could not open proc mem file: %v", err)
	}

	dbp.breakpoints = proc.NewBreakpointMap(dbp.arch, dbp)
	return dbp.refreshRegisters()
}

// wait waits for our traced process to change state, retrying on EINTR.
func (dbp *nativeProcess) wait(pid, options int) (int, *sys.WaitStatus, error) {
	var status sys.WaitStatus
	for {
		wpid, err := sys.Wait4(pid, &status, options, nil)
		if err != syscall.EINTR {
			return wpid, &status, err
		}
	}
}

// streamTargetOutput forwards the inferior's pty output, so the UI can show
// it even after the inferior is gone. Terminates when the pty master is
// closed or the slave side has no writers left.
func streamTargetOutput(ptmx *os.File, outputFn func(string)) {
	scan := bufio.NewScanner(ptmx)
	for scan.Scan() {
		outputFn(scan.Text())
	}
}
