package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"ttcal/internal/config"
	"ttcal/internal/courses"
	"ttcal/internal/extract"
	"ttcal/internal/ics"
	appLog "ttcal/internal/log"
	"ttcal/internal/model"
	"ttcal/internal/pipeline"
	"ttcal/internal/timetable"
	"ttcal/internal/web"
)

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath  string
	coursesPath string
	year        int
	listen      string
	logLevel    string
	serve       bool
	print       bool
}

const usage = `usage:
  ttcal [flags] '<selection JSON>' < events.json > timetable.ics
  ttcal [flags] -serve

The selection maps course identifiers to booleans, e.g. '{"CR03": true}'.
`

func main() {
	flags := parseFlags()

	conf, err := loadConfig(flags)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level, using info", err)
	}
	appLog.SetLevel(level)

	appLog.Debug("effective config",
		"reference_year", conf.ReferenceYear,
		"courses_path", conf.CoursesPath,
		"events_path", conf.EventsPath,
		"serve", flags.serve,
		"listen", conf.Listen,
	)

	if err := timetable.VerifySeries(conf.ReferenceYear); err != nil {
		appLog.Warn("default-course series does not match its weekdays", "year", conf.ReferenceYear, "err", err)
	}

	courseData, err := courses.Load(conf.CoursesPath)
	if err != nil {
		appLog.Error("failed to load course metadata", err, "path", conf.CoursesPath)
		os.Exit(1)
	}

	pipe := &pipeline.Pipeline{
		Year:    conf.ReferenceYear,
		Courses: courseData,
		Render: ics.RenderOptions{
			ProductID:    conf.ProductID,
			CalendarName: conf.CalendarName,
		},
	}

	if flags.serve {
		if err := serve(conf, pipe); err != nil {
			appLog.Error("server failed", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	sel, err := model.ParseSelection(flag.Arg(0))
	if err != nil {
		appLog.Error("invalid selection argument", err)
		os.Exit(2)
	}

	if err := generate(os.Stdin, os.Stdout, pipe, sel, flags.print); err != nil {
		appLog.Error("calendar generation failed", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "", "Path to YAML config file (created with defaults if missing)")
	flag.StringVar(&cfg.coursesPath, "courses", "", "Course metadata JSON (overrides config)")
	flag.IntVar(&cfg.year, "year", 0, "Reference year (overrides config)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flag.BoolVar(&cfg.serve, "serve", false, "Serve the selection form and calendars over HTTP")
	flag.BoolVar(&cfg.print, "print", false, "Print retained events as text instead of iCalendar")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage, "\nflags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	return cfg
}

func loadConfig(flags flagConfig) (*config.Config, error) {
	conf := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}

	if flags.coursesPath != "" {
		conf.CoursesPath = flags.coursesPath
	}
	if flags.year > 0 {
		conf.ReferenceYear = flags.year
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	return conf, nil
}

// generate reads every raw event from in before producing any output.
func generate(in io.Reader, out io.Writer, pipe *pipeline.Pipeline, sel model.Selection, asText bool) error {
	if !asText {
		doc, err := pipe.Run(in, sel)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, doc)
		return err
	}

	raws, err := timetable.DecodeRawEvents(in)
	if err != nil {
		return err
	}
	events, err := pipe.Events(raws, sel)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	for _, ev := range events {
		fmt.Fprintln(w, ev.String())
	}
	return w.Flush()
}

func serve(conf *config.Config, pipe *pipeline.Pipeline) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cache := extract.NewCache(extract.Options{
		EventsPath: conf.EventsPath,
		ErrorsPath: conf.ErrorsPath,
		Command:    conf.ExtractCommand,
		StaleAfter: conf.StaleAfter(),
	})

	if len(conf.ExtractCommand) > 0 {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(conf.RefreshCron, func() {
			if err := cache.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("scheduled extraction failed", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", conf.RefreshCron, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		appLog.Info("scheduled extraction refresh", "cron", conf.RefreshCron)
	}

	err := web.StartServer(ctx, web.NewServer(conf, pipe, cache))
	appLog.Info("ttcal exiting")
	return err
}
