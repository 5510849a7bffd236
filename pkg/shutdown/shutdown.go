// Package shutdown writes crash diagnostics before a fatal exit so a
// failed daemon leaves evidence next to its database.
package shutdown

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"chatsync/pkg/logger"
)

type exitRequest struct {
	Time      string `json:"time"`
	Reason    string `json:"reason"`
	CrashPath string `json:"crash_path,omitempty"`
}

// Abort logs the fatal error, writes a crash dump under the db path and
// exits. delaySeconds gives log sinks time to flush; pass 0 in tests.
func Abort(contextMsg string, err error, dbPath string, delaySeconds ...int) {
	delay := 2
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	dumpPath, derr := writeDiagnostics(dbPath, contextMsg, err)
	if derr != nil {
		logger.Error("crash_dump_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", dumpPath)
	}
	logger.Sync()
	time.Sleep(time.Duration(delay) * time.Second)
	os.Exit(2)
}

// writeDiagnostics writes a goroutine dump plus a machine-readable exit
// request file and returns the dump path.
func writeDiagnostics(dbPath, reason string, cause error) (string, error) {
	crashDir := "./crash"
	if dbPath != "" {
		crashDir = filepath.Join(dbPath, "crash")
	}
	if err := os.MkdirAll(crashDir, 0o700); err != nil {
		return "", err
	}

	ts := time.Now().UTC().Format("20060102T150405Z")
	dumpPath := filepath.Join(crashDir, "crash-"+ts+".txt")

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	body := fmt.Sprintf("reason: %s\nerror: %v\n\n%s", reason, cause, buf[:n])
	if err := os.WriteFile(dumpPath, []byte(body), 0o600); err != nil {
		return "", err
	}

	req := exitRequest{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		CrashPath: dumpPath,
	}
	rb, _ := json.Marshal(req)
	reqPath := filepath.Join(crashDir, "exit-"+ts+".json")
	if err := os.WriteFile(reqPath, rb, 0o600); err != nil {
		return dumpPath, err
	}
	return dumpPath, nil
}
