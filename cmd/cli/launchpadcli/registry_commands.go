package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
)

type listCommand struct{}

func (c *listCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()

		apps, err := s.client.ListApplications(ctx)
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			fmt.Println("No applications")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "APPLICATION\tSYSTEM\tID\tPORT\tDEBUG\tSTART COMMAND")
		for _, app := range apps {
			fmt.Fprintf(w, "%s\t\t%s\t\t\t%s\n", app.Name, app.ID, app.Directory)
			for _, system := range app.Systems {
				fmt.Fprintf(w, "\t%s\t%s\t%s\t%t\t%s\n", system.Name, system.ID, system.Port, system.DebugMode, system.StartCommand)
			}
		}
		return w.Flush()
	})
}

type addAppCommand struct {
	Args struct {
		Name      string `positional-arg-name:"name"`
		Directory string `positional-arg-name:"directory"`
	} `positional-args:"yes" required:"yes"`
}

func (c *addAppCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()

		app, err := s.client.AddApplication(ctx, c.Args.Name, c.Args.Directory)
		if err != nil {
			return err
		}
		fmt.Println(app.ID)
		return nil
	})
}

type updateAppCommand struct {
	ID        string `long:"id" required:"yes" description:"application id"`
	Name      string `long:"name" description:"new name; unchanged when empty"`
	Directory string `long:"dir" description:"new directory"`
}

func (c *updateAppCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()

		app, err := s.client.UpdateApplication(ctx, c.ID, c.Name, c.Directory)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s (%s)\n", app.Name, app.ID)
		return nil
	})
}

type rmAppCommand struct {
	Args struct {
		ID string `positional-arg-name:"application-id"`
	} `positional-args:"yes" required:"yes"`
}

func (c *rmAppCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()
		return s.client.DeleteApplication(ctx, c.Args.ID)
	})
}

// systemFields are the editable fields of a system
type systemFields struct {
	Name          string `long:"name" description:"system name"`
	Directory     string `long:"dir" description:"working directory of the commands"`
	StartCommand  string `long:"start" description:"start command"`
	DeployCommand string `long:"deploy" description:"deploy command"`
	Port          string `long:"port" description:"port exported as PORT and used by force-stop"`
	Debug         bool   `long:"debug" description:"append the debug flag and treat stderr as stdout"`
}

func (f systemFields) system(id string) domain.System {
	return domain.System{
		ID:            id,
		Name:          f.Name,
		Directory:     f.Directory,
		StartCommand:  f.StartCommand,
		DeployCommand: f.DeployCommand,
		Port:          domain.Port(f.Port),
		DebugMode:     f.Debug,
	}
}

type addSystemCommand struct {
	App string `long:"app" required:"yes" description:"application id"`
	systemFields
}

func (c *addSystemCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()

		system, err := s.client.AddSystem(ctx, c.App, c.system(""))
		if err != nil {
			return err
		}
		fmt.Println(system.ID)
		return nil
	})
}

type updateSystemCommand struct {
	App string `long:"app" required:"yes" description:"application id"`
	ID  string `long:"id" required:"yes" description:"system id"`
	systemFields
}

func (c *updateSystemCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()

		system, err := s.client.UpdateSystem(ctx, c.App, c.system(c.ID))
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s (%s)\n", system.Name, system.ID)
		return nil
	})
}

type rmSystemCommand struct {
	App string `long:"app" required:"yes" description:"application id"`
	ID  string `long:"id" required:"yes" description:"system id"`
}

func (c *rmSystemCommand) Execute(args []string) error {
	return withSession(func(s *session) error {
		ctx, cancel := s.requestContext()
		defer cancel()
		return s.client.DeleteSystem(ctx, c.App, c.ID)
	})
}
