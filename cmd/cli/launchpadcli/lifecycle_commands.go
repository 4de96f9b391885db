package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
)

var errFollowDone = errors.New("follow done")

// followOptions stream the output of the started process until its terminal event
type followOptions struct {
	Follow bool          `long:"follow" short:"f" description:"print output until the process ends"`
	Settle time.Duration `long:"settle" default:"200ms" description:"wait for the event stream to attach before issuing the command"`
}

// run issues call and, when following, prints events of systemID until terminal
// reports the end of the run
func (o followOptions) run(s *session, systemID string, terminal domain.EventType, call func(ctx context.Context) error) error {
	if !o.Follow {
		ctx, cancel := s.requestContext()
		defer cancel()
		return call(ctx)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamDone := make(chan error, 1)
	var success bool
	go func() {
		streamDone <- s.client.Events(ctx, func(event domain.Event) error {
			if event.SystemID != systemID {
				return nil
			}
			printEvent(event, false)
			if event.Type == terminal {
				success = event.Success
				return errFollowDone
			}
			return nil
		})
	}()

	select {
	case err := <-streamDone:
		return err
	case <-time.After(o.Settle):
	}

	callCtx, cancel := context.WithTimeout(ctx, options.Timeout)
	err := call(callCtx)
	cancel()
	if err != nil {
		return err
	}

	err = <-streamDone
	switch {
	case errors.Is(err, errFollowDone):
		if terminal == domain.EventDeployed && !success {
			return fmt.Errorf("deploy of %s failed", systemID)
		}
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		return err
	}
}

type startCommand struct {
	App    string `long:"app" required:"yes" description:"application id"`
	System string `long:"system" required:"yes" description:"system id"`
	followOptions
}

func (c *startCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		return c.run(s, c.System, domain.EventStopped, func(ctx context.Context) error {
			return s.client.Start(ctx, c.App, c.System)
		})
	})
}

type deployCommand struct {
	App    string `long:"app" required:"yes" description:"application id"`
	System string `long:"system" required:"yes" description:"system id"`
	followOptions
}

func (c *deployCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		return c.run(s, c.System, domain.EventDeployed, func(ctx context.Context) error {
			return s.client.Deploy(ctx, c.App, c.System)
		})
	})
}

type stopCommand struct {
	Args struct {
		System string `positional-arg-name:"system-id"`
	} `positional-args:"yes" required:"yes"`
}

func (c *stopCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()
		return s.client.Stop(ctx, c.Args.System)
	})
}

type forceStopCommand struct {
	App    string `long:"app" required:"yes" description:"application id"`
	System string `long:"system" required:"yes" description:"system id"`
}

func (c *forceStopCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()

		summary, err := s.client.ForceStop(ctx, c.App, c.System)
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	})
}

type startAllCommand struct {
	Args struct {
		App string `positional-arg-name:"application-id"`
	} `positional-args:"yes" required:"yes"`
}

func (c *startAllCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()
		return s.client.StartAll(ctx, c.Args.App)
	})
}

type statusCommand struct{}

func (c *statusCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()

		processes, err := s.client.Status(ctx)
		if err != nil {
			return err
		}
		if len(processes) == 0 {
			fmt.Println("No running systems")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYSTEM\tAPPLICATION\tPID\tKIND\tSTARTED\tRUNNING\tMEMORY\tCPU")
		for _, p := range processes {
			memory, cpu := "-", "-"
			if p.Usage != nil {
				memory = fmt.Sprintf("%.1fMiB", float64(p.Usage.MemoryRSS)/(1<<20))
				cpu = fmt.Sprintf("%.1f%%", p.Usage.CPUPercent)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%t\t%s\t%s\n", p.SystemID, p.ApplicationID, p.PID, p.Kind,
				p.StartedAt.Local().Format(time.RFC3339), p.Running, memory, cpu)
		}
		return w.Flush()
	})
}

type historyCommand struct {
	Limit int `long:"limit" short:"n" default:"20" description:"number of runs to show"`
	Args  struct {
		System string `positional-arg-name:"system-id"`
	} `positional-args:"yes" required:"yes"`
}

func (c *historyCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()

		runs, err := s.client.History(ctx, c.Args.System, c.Limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tKIND\tPID\tOUTCOME\tEXIT\tSIGNAL\tDURATION")
		for _, run := range runs {
			exit := "-"
			if run.ExitCode != nil {
				exit = strconv.Itoa(*run.ExitCode)
			}
			duration := "-"
			if run.EndedAt != nil {
				duration = run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n", run.StartedAt.Local().Format(time.RFC3339),
				run.Kind, run.PID, run.Outcome, exit, run.Signal, duration)
		}
		return w.Flush()
	})
}

type watchCommand struct {
	System string `long:"system" description:"only show events of this system"`
}

func (c *watchCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err := s.client.Events(ctx, func(event domain.Event) error {
			if c.System != "" && event.SystemID != c.System {
				return nil
			}
			printEvent(event, true)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}
