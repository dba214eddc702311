package logflags

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func resetFlags() {
	debugger = false
	proc = false
	terminal = false
	logOut = nil
}

func TestSetupParsesLayerList(t *testing.T) {
	defer resetFlags()

	if err := Setup(true, "proc,terminal", ""); err != nil {
		t.Fatal(err)
	}
	if Debugger() {
		t.Fatal("debugger layer enabled without being requested")
	}
	if !Proc() || !Terminal() {
		t.Fatal("requested layers not enabled")
	}
}

func TestSetupDefaultsToDebugger(t *testing.T) {
	defer resetFlags()

	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !Debugger() {
		t.Fatal("debugger layer not enabled by default")
	}
}

func TestSetupRejectsOutputWithoutLog(t *testing.T) {
	defer resetFlags()

	if err := Setup(false, "proc", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected errLogstrWithoutLog, got %v", err)
	}
}

func TestSetupLogDestFile(t *testing.T) {
	defer resetFlags()
	defer Close()

	dest := filepath.Join(t.TempDir(), "godbg.log")
	if err := Setup(true, "proc", dest); err != nil {
		t.Fatal(err)
	}
	if logOut == nil {
		t.Fatal("log output not redirected")
	}
}

func TestLoggerLevels(t *testing.T) {
	defer resetFlags()

	if err := Setup(true, "proc", ""); err != nil {
		t.Fatal(err)
	}
	if lvl := ProcLogger().Logger.Level; lvl != logrus.DebugLevel {
		t.Fatalf("enabled layer at level %v", lvl)
	}
	if lvl := DebuggerLogger().Logger.Level; lvl != logrus.PanicLevel {
		t.Fatalf("disabled layer at level %v", lvl)
	}
}
