//nolint:revive // Package name kept as "log" for stable internal imports.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	mu        sync.Mutex
	out       io.Writer = os.Stdout
	errOut    io.Writer = os.Stderr
	debugMode           = false
)

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	mu.Lock()
	debugMode = enabled
	mu.Unlock()
}

// SetOutput redirects both streams to w. Tests point this at a buffer;
// the watch daemon instead inherits its log file at the fd level.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	errOut = w
	mu.Unlock()
}

func printTo(w io.Writer, line string) {
	mu.Lock()
	fmt.Fprintln(w, line)
	mu.Unlock()
}

// Debug logs debug messages when debug mode is enabled
func Debug(format string, elem ...any) {
	mu.Lock()
	enabled := debugMode
	mu.Unlock()
	if enabled {
		printTo(out, color.CyanString("[DEBUG] ")+fmt.Sprintf(format, elem...))
	}
}

// DebugH2 logs indented debug messages when debug mode is enabled
func DebugH2(format string, elem ...any) {
	mu.Lock()
	enabled := debugMode
	mu.Unlock()
	if enabled {
		printTo(out, color.CyanString("  [DEBUG] ")+fmt.Sprintf(format, elem...))
	}
}

// Info logs an informational message
func Info(format string, elem ...any) {
	printTo(out, color.BlueString("[+] ")+fmt.Sprintf(format, elem...))
}

// InfoH2 logs an indented informational message
func InfoH2(format string, elem ...any) {
	printTo(out, color.GreenString("  [+] ")+fmt.Sprintf(format, elem...))
}

// InfoH3 logs a double-indented informational message
func InfoH3(format string, elem ...any) {
	printTo(out, color.YellowString("    [+] ")+fmt.Sprintf(format, elem...))
}

// Warn logs a warning message
func Warn(format string, elem ...any) {
	printTo(out, color.YellowString("[!] ")+fmt.Sprintf(format, elem...))
}

// Error logs an error message to stderr
func Error(format string, elem ...any) {
	printTo(errOut, color.RedString("[x] ")+fmt.Sprintf(format, elem...))
}

// ErrorH2 logs an indented error message to stderr
func ErrorH2(format string, elem ...any) {
	printTo(errOut, color.RedString("  [x] ")+fmt.Sprintf(format, elem...))
}

// Fatal logs an error message and exits the program
func Fatal(args ...interface{}) {
	var message string

	switch len(args) {
	case 0:
		message = "fatal error occurred"
	case 1:
		switch v := args[0].(type) {
		case error:
			message = v.Error()
		case string:
			message = v
		default:
			message = fmt.Sprintf("%v", v)
		}
	default:
		// First string argument doubles as a format when more follow
		if format, ok := args[0].(string); ok {
			message = fmt.Sprintf(format, args[1:]...)
		} else {
			message = fmt.Sprint(args...)
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(message), "\n") {
		printTo(errOut, color.RedString("[x] ")+line)
	}
	os.Exit(1)
}
