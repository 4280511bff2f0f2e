package supervisor

import (
	"fmt"
	"io"
	"os"

	"combo/pkg/codec"

	"golang.org/x/sys/unix"
)

const (
	colorReset = "\033[0m"
	colorGreen = "\033[1;32m"
	colorRed   = "\033[1;31m"
)

// PrintStatus writes one "name pid alive|dead" line per process, master first.
func PrintStatus(w io.Writer, report *codec.StatusReport) {
	color := isTerminal(w)

	printProc(w, report.Master, color)
	for _, p := range report.Workers {
		printProc(w, p, color)
	}
}

func printProc(w io.Writer, p codec.ProcInfo, color bool) {
	status := string(p.Status)
	if color {
		c := colorGreen
		if p.Status != codec.ProcessAlive {
			c = colorRed
		}
		status = c + status + colorReset
	}

	_, _ = fmt.Fprintf(w, "%s %d %s\n", p.Name, p.Pid, status)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}
