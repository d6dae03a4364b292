package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inventaire-ai/config"
	"inventaire-ai/internal/imageops"
	"inventaire-ai/internal/models"
	"inventaire-ai/internal/progress"
	"inventaire-ai/internal/scanner"
	"inventaire-ai/internal/service"
	"inventaire-ai/internal/store"
	"inventaire-ai/internal/update"
	"inventaire-ai/internal/util"
	"inventaire-ai/internal/vision"
	"inventaire-ai/internal/worker"
)

const usage = `Usage:
  inventaire scan <folder|image|zip> [--target NAME] [--context TEXT] [--watch]
  inventaire rescan <folder>
  inventaire export <folder> [--out FILE]
  inventaire review-queue <folder>
  inventaire version
`

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	tp, err := util.InitTracer("inventaire-ai", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	app := newApp(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	checker := update.NewChecker(cfg.Server.Version, cfg.Server.UpdateURL)
	checker.CheckAsync(ctx, func(info *update.Info) {
		fmt.Fprintf(os.Stderr, "A newer version is available: %s (%s)\n", info.Version, info.URL)
	})

	var cmdErr error
	switch os.Args[1] {
	case "scan":
		cmdErr = app.runScan(ctx, os.Args[2:])
	case "rescan":
		cmdErr = app.runRescan(ctx, os.Args[2:])
	case "export":
		cmdErr = app.runExport(ctx, os.Args[2:])
	case "review-queue", "queue":
		cmdErr = app.runQueue(os.Args[2:])
	case "version":
		fmt.Println(cfg.Server.Version)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if cmdErr != nil {
		util.GetLogger().Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		os.Exit(1)
	}
}

// app wires the long-lived components once and shares them across commands.
type app struct {
	cfg     *config.Config
	store   *store.Store
	engine  *service.Engine
	scanner *scanner.Scanner
	events  *progress.Publisher
}

func newApp(cfg *config.Config) *app {
	st := store.NewStore(cfg.Ledger)
	cats, err := store.LoadCategories("categories.csv")
	if err != nil {
		util.GetLogger().Warn("Categories unavailable: " + err.Error())
		cats = store.Categories{}
	}

	events := progress.NewPublisher()
	events.Subscribe(func(e progress.Event) {
		if e.Total > 0 && e.File != "" {
			fmt.Printf("[%d/%d] %s\n", e.Done, e.Total, e.File)
		}
	})

	engine := service.NewEngine(
		st,
		imageops.New(cfg.Image),
		vision.NewClient(cfg.Analysis),
		events,
		cfg,
		cats,
	)
	engine.Prompter = askOnTerminal

	return &app{
		cfg:     cfg,
		store:   st,
		engine:  engine,
		scanner: scanner.New(),
		events:  events,
	}
}

func (a *app) runScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	targetName := fs.String("target", "", "expected object name for every photo in the lot")
	folderCtx := fs.String("context", "", "override the folder context note")
	watch := fs.Bool("watch", false, "keep running and pick up new photos periodically")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("scan expects exactly one target path")
	}

	target, err := a.scanner.Resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	opts := service.ScanOptions{TargetName: *targetName, Context: *folderCtx}

	if err := a.engine.ProcessAll(ctx, target, opts); err != nil {
		return err
	}

	if *watch {
		w := worker.New(a.engine, a.scanner, target.Dir, opts, 30*time.Second)
		w.Start(ctx)
		<-ctx.Done()
		w.Stop()
	}
	return nil
}

func (a *app) runRescan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rescan", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("rescan expects exactly one folder")
	}

	target, err := a.scanner.Resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	l, err := a.store.Load(target.LedgerPath())
	if err != nil {
		return err
	}

	done, err := a.engine.ProcessPendingRemarks(ctx, l, target.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("%d remark(s) processed\n", done)
	return nil
}

func (a *app) runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "output xlsx path (default: next to the ledger)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("export expects exactly one folder")
	}

	target, err := a.scanner.Resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	l, err := a.store.Load(target.LedgerPath())
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = strings.TrimSuffix(target.LedgerPath(), ".csv") + ".xlsx"
	}
	if err := a.store.ExportXLSX(l, path); err != nil {
		return err
	}
	a.events.Publish(progress.Event{Stage: progress.StageExport, Message: path})
	fmt.Printf("Exported %d record(s) to %s\n", len(l.Records), path)
	return nil
}

func (a *app) runQueue(args []string) error {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("queue expects exactly one folder")
	}

	target, err := a.scanner.Resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	l, err := a.store.Load(target.LedgerPath())
	if err != nil {
		return err
	}

	nav, err := a.engine.NewNavigator(l, target.Dir)
	if err != nil {
		return err
	}

	fmt.Printf("%d photo(s) to review:\n", nav.Len())
	nav.Wrap = false
	for {
		file := nav.CurrentFile()
		fmt.Printf("  %s (min confidence %d)\n", file, l.MinConfidence(file))
		if !nav.Next() {
			break
		}
	}
	return nil
}

// askOnTerminal is the interactive low-confidence prompter: keep the
// result, or move the photo to manual review.
func askOnTerminal(r *models.Record) models.LowConfidenceAction {
	fmt.Printf("Low confidence (%d) for %q in %s. Move to manual review? [y/N] ",
		r.Confidence, r.Name, r.SourceFile)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return models.ActionQuarantine
	}
	if strings.EqualFold(strings.TrimSpace(answer), "y") {
		return models.ActionQuarantine
	}
	return models.ActionFlag
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()
	return ctx, cancel
}
