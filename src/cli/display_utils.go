package cli

import (
	"fmt"
	"io"
	"time"

	"lspclient/src/internal/common"
	"lspclient/src/server"
	"lspclient/src/server/capabilities"
	"lspclient/src/server/protocol"
	"lspclient/src/server/trace"
)

func printDiagnostics(w io.Writer, diags []server.Diagnostic) {
	if len(diags) == 0 {
		fmt.Fprintln(w, "no diagnostics")
		return
	}
	for _, d := range diags {
		if d.Source != "" {
			fmt.Fprintf(w, "%s [%s]\n", d, d.Source)
		} else {
			fmt.Fprintln(w, d)
		}
	}
}

func printCapabilities(w io.Writer, caps *capabilities.Set) {
	if !caps.Stored() {
		fmt.Fprintln(w, "server not initialized")
		return
	}
	for _, name := range caps.Names() {
		state := "off"
		if caps.Has(name) {
			state = "on"
		}
		fmt.Fprintf(w, "%-36s %s\n", name, state)
	}
}

func printTraceSessions(w io.Writer, sessions []trace.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no recorded sessions")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %d messages\n", s.ID, s.Entries)
	}
}

func printTraceEntry(w io.Writer, e trace.Entry, full bool) {
	arrow := "<-"
	if e.Direction == protocol.Outbound {
		arrow = "->"
	}
	payload := string(e.Payload)
	if !full {
		payload = common.SanitizeErrorForLogging(payload)
	}
	fmt.Fprintf(w, "%6d %s %s %s\n", e.Seq, e.Time.Format(time.RFC3339Nano), arrow, payload)
}
