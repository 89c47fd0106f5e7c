package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"usercal/internal/app"
	"usercal/internal/capture"
	"usercal/internal/config"
	"usercal/internal/ics"
	appLog "usercal/internal/log"
	"usercal/internal/scheduler"
	"usercal/internal/userevents"
	"usercal/internal/web"
)

const version = "0.1.0"

// flagConfig holds global CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	baseURL    string
	logLevel   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.baseURL != "" {
		conf.Remote.BaseURL = flags.baseURL
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Debug("effective config",
		"listen", conf.Listen,
		"base_url", conf.Remote.BaseURL,
		"timeout", conf.Remote.Timeout,
		"refresh", conf.RefreshCron,
		"timezone", conf.Timezone,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(conf, app.Options{})
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if err := run(ctx, a, cmd, args); err != nil {
		appLog.Error("command failed", err, "command", cmd)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath(), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.baseURL, "base-url", "", "Events service base URL (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info or error (overrides config if set)")
	flag.Usage = usage

	flag.Parse()

	return cfg
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usercal %s\n\nUsage: usercal [flags] [command]\n\nCommands:\n", version)
	fmt.Fprintln(out, "  serve              run the web UI/API and periodic refresh (default)")
	fmt.Fprintln(out, "  list               print events")
	fmt.Fprintln(out, "  create             create a draft event")
	fmt.Fprintln(out, "  delete <id>        delete an event")
	fmt.Fprintln(out, "  export [-o file]   write events as iCalendar")
	fmt.Fprintln(out, "  import <file|url>  create events from an iCalendar source")
	fmt.Fprintln(out, "  snapshot [-o png]  screenshot the running web UI")
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/usercal/config.yaml"
	}
	return "./usercal.yaml"
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "serve":
		return runServe(ctx, a)
	case "list":
		return runList(ctx, a, os.Stdout)
	case "create":
		return runCreate(ctx, a, os.Stdout)
	case "delete":
		return runDelete(ctx, a, args)
	case "export":
		return runExport(ctx, a, args)
	case "import":
		return runImport(ctx, a, args)
	case "snapshot":
		return runSnapshot(ctx, a, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runServe(ctx context.Context, a *app.App) error {
	appLog.Info("usercal starting", "version", version, "listen", a.Config.Listen, "base_url", a.Config.Remote.BaseURL)

	// Initial load; a failure is reported in status and retried on the
	// next scheduled refresh.
	a.Load(ctx)

	if a.Config.RefreshEnabled() {
		sched, err := scheduler.New(ctx, a.Config.RefreshCron, func(ctx context.Context) {
			a.Load(ctx)
		})
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	err := web.NewServer(a).ListenAndServe(ctx)
	appLog.Info("usercal exiting")
	return err
}

// loadFirst populates the store for one-shot commands.
func loadFirst(ctx context.Context, a *app.App) error {
	if n, ok := a.Load(ctx).(userevents.LoadFailed); ok {
		return errors.New(n.Error)
	}
	return nil
}

func runList(ctx context.Context, a *app.App, out io.Writer) error {
	if err := loadFirst(ctx, a); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTART\tEND")
	for _, ev := range userevents.ProjectEvents(a.Snapshot().Events) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ev.ID, ev.Title, ev.DateStart, ev.DateEnd)
	}
	return tw.Flush()
}

func runCreate(ctx context.Context, a *app.App, out io.Writer) error {
	n, ok := a.Create(ctx).(userevents.CreateSucceeded)
	if !ok {
		return errors.New("failed to create event")
	}
	fmt.Fprintf(out, "created %d\n", n.Event.ID)
	return nil
}

func runDelete(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: usercal delete <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	if n, ok := a.Delete(ctx, id).(userevents.DeleteFailed); ok {
		if n.Status != 0 {
			return fmt.Errorf("failed to delete event %d: remote status %d", id, n.Status)
		}
		return fmt.Errorf("failed to delete event %d", id)
	}
	return nil
}

func runExport(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	outPath := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := loadFirst(ctx, a); err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	events := userevents.ProjectEvents(a.Snapshot().Events)
	return ics.WriteTo(out, events, ics.ExportOptions{ProdID: a.Config.ICS.ProdID})
}

func runImport(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: usercal import <file|url>")
	}

	body, err := ics.ReadSource(ctx, a.Remote, args[0])
	if err != nil {
		return err
	}
	parsed, err := ics.Parse(body)
	if err != nil {
		return err
	}

	now := time.Now()
	res, err := ics.Expand(parsed, ics.ExpandConfig{
		RangeStart: now,
		RangeEnd:   now.AddDate(0, 0, a.Config.ICS.HorizonDays),
	})
	if err != nil {
		return err
	}

	created, failed := a.Import(ctx, res.Drafts)
	appLog.Info("import finished", "source", args[0], "created", created, "failed", failed, "truncated", len(res.Truncated))
	if failed > 0 {
		return fmt.Errorf("%d of %d events failed to import", failed, len(res.Drafts))
	}
	return nil
}

func runSnapshot(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	outPath := fs.String("o", a.Config.Capture.OutputPath, "output PNG")
	url := fs.String("url", "http://"+a.Config.Listen+"/", "page to capture")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" {
		*outPath = "usercal.png"
	}

	_, err := capture.Screenshot(ctx, capture.Options{
		URL:        *url,
		OutputPath: *outPath,
		Width:      a.Config.Capture.Width,
		Height:     a.Config.Capture.Height,
	})
	if err != nil {
		return err
	}
	appLog.Info("snapshot written", "path", *outPath)
	return nil
}
