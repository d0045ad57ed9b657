package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"isolator/internal/isolation"
	"isolator/internal/isolation/batch"
	"isolator/internal/isolation/child"
	"isolator/internal/isolation/world"
	"isolator/pkg/utils/logger"

	"go.uber.org/zap"
)

func main() {
	registerTasks()
	if child.IsChild() {
		child.Main()
	}
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	budgetFlag := flag.Duration("budget", 0, "Allowed time per computation (0 uses the configured default)")
	list := flag.Bool("list", false, "List registered computations and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] computation...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *list {
		fmt.Println(strings.Join(child.Default.Names(), "\n"))
		return 0
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return 1
	}
	budget, err := appCfg.Isolation.budget(*budgetFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid budget: %v\n", err)
		return 2
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	w, err := world.Linux(world.LinuxConfig{Hardening: appCfg.Child})
	if err != nil {
		logger.Error(context.Background(), "init world failed", zap.Error(err))
		return 1
	}
	iso := isolation.New(w, isolation.Config{
		Supervisor: appCfg.Isolation.Supervisor,
		Registry:   child.Default,
	})

	jobs := make([]batch.Job, 0, flag.NArg())
	for _, name := range flag.Args() {
		jobs = append(jobs, batch.Job{Computation: name, Budget: budget})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := batch.Run(ctx, iso, jobs, appCfg.Batch.Concurrency)
	if err != nil {
		logger.Error(ctx, "run computations failed", zap.Error(err))
		return 1
	}
	allOK, err := writeReports(os.Stdout, results)
	if err != nil {
		logger.Error(ctx, "write reports failed", zap.Error(err))
		return 1
	}
	if !allOK {
		return 1
	}
	return 0
}
