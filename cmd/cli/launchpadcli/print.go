package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
)

func printEvent(event domain.Event, withSystem bool) {
	prefix := ""
	if withSystem {
		prefix = "[" + event.SystemID + "] "
	}

	switch event.Type {
	case domain.EventOutput:
		out := os.Stdout
		if event.Classification == domain.ClassStderr || event.Classification == domain.ClassError {
			out = os.Stderr
		}
		data := event.Data
		if withSystem {
			data = strings.TrimRight(data, "\n") + "\n"
		}
		fmt.Fprint(out, prefix+data)
	case domain.EventStopped:
		fmt.Printf("%sstopped\n", prefix)
	case domain.EventDeployed:
		result := "succeeded"
		if !event.Success {
			result = "failed"
		}
		fmt.Printf("%sdeploy %s\n", prefix, result)
	}
}

func printSummary(summary domain.ForceStopSummary) {
	original := "no tracked process"
	if summary.OriginalPID != nil {
		original = fmt.Sprintf("pid %d killed=%t", *summary.OriginalPID, summary.KilledOriginal)
	}
	port := "no port"
	if summary.PortAttempted != nil {
		port = fmt.Sprintf("port %d killed=%t", *summary.PortAttempted, summary.KilledByPort)
	}
	fmt.Printf("original: %s\nby port:  %s\n", original, port)
}
