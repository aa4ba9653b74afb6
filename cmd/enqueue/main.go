package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mtr002/Job-Runner/internal/actions"
	"github.com/mtr002/Job-Runner/internal/config"
	"github.com/mtr002/Job-Runner/internal/jobs"
	"github.com/mtr002/Job-Runner/internal/logger"
	"github.com/mtr002/Job-Runner/internal/nats"
	"github.com/mtr002/Job-Runner/internal/queue"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		command    = flag.String("command", "", `command text, e.g. "echo hi"`)
		action     = flag.String("action", "", "action name; remaining arguments become its args")
		id         = flag.String("id", "", "job id (generated when empty)")
		viaNATS    = flag.Bool("nats", false, "publish on the NATS submit subject instead of pushing to Redis")
		noValidate = flag.Bool("skip-validate", false, "do not check the action against the local catalog")
		meta       = flag.String("meta", "", "comma separated key=value metadata")
	)
	flag.Parse()

	job, err := buildJob(*command, *action, *id, *meta, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger.Init("job-enqueue", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *viaNATS {
		err = publish(cfg, job)
	} else {
		err = push(ctx, cfg, job, !*noValidate)
	}
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to enqueue job")
		os.Exit(1)
	}
}

func push(ctx context.Context, cfg *config.Config, job *jobs.Job, validate bool) error {
	q, err := queue.Connect(ctx, queue.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Redis.MaxRetries,
		Key:        cfg.Queue.Key,
	})
	if err != nil {
		return err
	}
	defer q.Close()

	var check func(jobs.Directive) error
	if validate {
		registry, err := actions.NewDefaultRegistry(cfg.Runner.ExecAllow)
		if err != nil {
			return err
		}
		check = registry.Validate
	}

	job, err = jobs.NewManager(q, check).SubmitJob(ctx, job)
	if err != nil {
		return err
	}

	fmt.Println(job.ID)
	return nil
}

func publish(cfg *config.Config, job *jobs.Job) error {
	if _, err := job.Directive(); err != nil {
		return err
	}

	client, err := nats.NewClient(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.PublishJobSubmission(&nats.JobSubmissionMessage{
		ID:       job.ID,
		Command:  job.Command,
		Action:   job.Action,
		Args:     job.Args,
		Metadata: job.Metadata,
	})
}

// buildJob turns the command line into a job. Positional arguments are only
// accepted with -action.
func buildJob(command, action, id, meta string, args []string) (*jobs.Job, error) {
	switch {
	case command == "" && action == "":
		return nil, errors.New("one of -command or -action is required")
	case command != "" && action != "":
		return nil, errors.New("-command and -action are mutually exclusive")
	case command != "" && len(args) > 0:
		return nil, fmt.Errorf("unexpected arguments %q: put them inside -command or use -action", args)
	}

	job := &jobs.Job{
		ID:       id,
		Command:  command,
		Action:   action,
		Metadata: parseMetadata(meta),
	}
	if action != "" && len(args) > 0 {
		job.Args = args
	}
	return job, nil
}

func parseMetadata(s string) map[string]string {
	if s == "" {
		return nil
	}

	meta := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		meta[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return meta
}
