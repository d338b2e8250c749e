package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CrashLogDir is the directory where crash files are written
var CrashLogDir = "./logs"

// InstallCrashHandler sets the crash directory. Pair it with a deferred
// RecoverAndExit at the top of main.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
}

// RecoverAndExit writes a crash report for a panic in main and exits with code 2
func RecoverAndExit() {
	r := recover()
	if r == nil {
		return
	}
	buf := make([]byte, 16*1024)
	n := runtime.Stack(buf, false)
	WriteCrashFile(r, string(buf[:n]))
	os.Exit(2)
}

// WriteCrashFile writes a crash report and returns its path, or "" if it could
// only be written to stderr
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	var report bytes.Buffer
	report.WriteString("=== CNINFO2NB CRASH REPORT ===\n")
	fmt.Fprintf(&report, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&report, "Version: %s\n\n", GetFullVersion())
	fmt.Fprintf(&report, "=== PANIC VALUE ===\n%v\n\n", panicVal)
	fmt.Fprintf(&report, "=== STACK TRACE ===\n%s\n", stackTrace)
	fmt.Fprintf(&report, "=== SYSTEM INFO ===\nNumGoroutine: %d\nGOOS: %s\nGOARCH: %s\n",
		runtime.NumGoroutine(), runtime.GOOS, runtime.GOARCH)

	if err := os.MkdirAll(CrashLogDir, 0755); err == nil {
		path := filepath.Join(CrashLogDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))
		if err := os.WriteFile(path, report.Bytes(), 0644); err == nil {
			fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\nPanic: %v\n", path, panicVal)
			return path
		}
	}

	fmt.Fprintf(os.Stderr, "%s", report.String())
	return ""
}
