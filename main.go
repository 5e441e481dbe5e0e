package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/idev006/MTYoutubeAutoPost/apikey"
	"github.com/idev006/MTYoutubeAutoPost/config"
	"github.com/idev006/MTYoutubeAutoPost/dupcheck"
	"github.com/idev006/MTYoutubeAutoPost/orchestrator"
	"github.com/idev006/MTYoutubeAutoPost/retry"
	"github.com/idev006/MTYoutubeAutoPost/scanner"
	"github.com/idev006/MTYoutubeAutoPost/storage"
	"github.com/idev006/MTYoutubeAutoPost/task"
	"github.com/idev006/MTYoutubeAutoPost/worker"
	"github.com/idev006/MTYoutubeAutoPost/youtube"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "scan":
		cmdScan(args)
	case "upload":
		cmdUpload(args)
	case "resume":
		cmdResume(args)
	case "sync":
		cmdSync(args)
	case "keys":
		cmdKeys(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mtyap - bulk YouTube uploader for product videos

Usage:
  mtyap scan [flags] <folder>...    Scan product folders and report what would upload
  mtyap upload [flags] <folder>...  Scan, duplicate-check and upload product folders
  mtyap resume                      Recover an interrupted session and continue it
  mtyap sync [flags]                Refresh the local channel-video cache
  mtyap keys                        Show API credential sets and quota state
  mtyap help                        Show this help message

Examples:
  mtyap scan ./products/shirt-blue                # Inspect one folder
  mtyap upload --parent ./products                # Upload every subfolder
  mtyap upload ./products/a ./products/b          # Upload specific folders
  mtyap sync --force                              # Re-sync ignoring the guard interval

For help on a specific command: mtyap <command> -h
`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// collectFolders resolves positional args into product folder paths,
// expanding --parent into its subdirectories.
func collectFolders(parent bool, argv []string) []string {
	if !parent {
		return argv
	}
	var folders []string
	for _, p := range argv {
		subs, err := scanner.ScanParent(p)
		if err != nil {
			fatalf("%v", err)
		}
		for _, f := range subs {
			folders = append(folders, f.FolderPath)
		}
	}
	return folders
}

func cmdScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	parent := fs.Bool("parent", false, "Treat arguments as parent directories and scan their subfolders")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mtyap scan [flags] <folder>...\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing folder\n")
		fs.Usage()
		os.Exit(1)
	}

	folders := scanner.ScanFolders(collectFolders(*parent, argv))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FOLDER\tPROD_CODE\tVIDEOS\tSTATUS")
	for _, f := range folders {
		status := "ok"
		if !f.Valid() {
			status = strings.Join(f.Errors, "; ")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.FolderName, f.ProdCode(), len(f.Videos), status)
	}
	w.Flush()
}

func cmdUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	parent := fs.Bool("parent", false, "Treat arguments as parent directories and scan their subfolders")
	workers := fs.Int("workers", 0, "Override configured worker count (1-5)")
	noDupCheck := fs.Bool("no-dup-check", false, "Skip the duplicate check; upload everything")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mtyap upload [flags] <folder>...\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing folder\n")
		fs.Usage()
		os.Exit(1)
	}

	env := buildEnv(*workers)
	ctx := context.Background()

	var checker orchestrator.DuplicateChecker
	if !*noDupCheck {
		checker = env.checker
	}
	orch, done := buildOrchestrator(env, checker)

	tasks, err := orch.ProcessFolders(ctx, collectFolders(*parent, argv))
	if err != nil {
		fatalf("prepare tasks: %v", err)
	}
	if len(tasks) == 0 {
		fmt.Println("Nothing to upload.")
		return
	}

	uploads, updates := 0, 0
	for _, t := range tasks {
		if t.Action == task.ActionUpdate {
			updates++
		} else {
			uploads++
		}
	}
	fmt.Printf("Prepared %d tasks (%d uploads, %d updates) in session %s\n",
		len(tasks), uploads, updates, orch.SessionID())

	runSession(ctx, orch, done)
}

func cmdResume(args []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mtyap resume\n")
	}
	fs.Parse(args)

	env := buildEnv(0)
	ctx := context.Background()
	orch, done := buildOrchestrator(env, env.checker)

	recovered, err := orch.ResumeFromCrash(ctx)
	if err != nil {
		fatalf("recover session: %v", err)
	}
	if !recovered {
		fmt.Println("No interrupted session to resume.")
		return
	}

	fmt.Printf("Recovered %d tasks from session %s\n", orch.TaskCount(), orch.SessionID())
	runSession(ctx, orch, done)
}

// runSession starts processing and blocks until every task has an outcome.
// Ctrl-C stops gracefully: in-flight uploads finish, queued tasks stay
// persisted for a later resume.
func runSession(ctx context.Context, orch *orchestrator.Orchestrator, done <-chan struct{}) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	orch.Start(ctx)

	select {
	case <-done:
		st := orch.GetStatus()
		fmt.Printf("Done: %d completed, %d failed\n", st.Pool.Completed, st.Pool.Failed)
	case <-interrupt:
		fmt.Println("\nStopping after current uploads...")
		orch.Stop(ctx)
		st := orch.GetStatus()
		fmt.Printf("Stopped: %d completed, %d failed, %d still pending (run 'mtyap resume' to continue)\n",
			st.Pool.Completed, st.Pool.Failed, st.Pool.Remaining)
	}
}

func cmdSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	force := fs.Bool("force", false, "Sync even if the cache was refreshed recently")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mtyap sync [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	env := buildEnv(0)
	ctx := context.Background()

	var synced int
	err := retry.Do(ctx, retry.Config{
		MaxRetries:     env.cfg.MaxRetries,
		BaseDelay:      env.cfg.RetryBaseDelay,
		MaxDelay:       10 * time.Minute,
		JitterFraction: 0.2,
	}, nil, func(ctx context.Context) error {
		var err error
		synced, err = env.checker.Sync(ctx, *force)
		return err
	})
	if err != nil {
		fatalf("sync channel videos: %v", err)
	}
	fmt.Printf("Synced %d new videos into the duplicate cache\n", synced)
}

func cmdKeys(args []string) {
	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mtyap keys\n")
	}
	fs.Parse(args)

	cfg := loadConfig()
	rotator, err := apikey.NewRotator(cfg.ConfigDir())
	if err != nil {
		fatalf("load credential sets from %s: %v", cfg.ConfigDir(), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tCURRENT\tQUOTA")
	for _, ks := range rotator.Status() {
		current := ""
		if ks.IsCurrent {
			current = "*"
		}
		quota := "available"
		if ks.IsExhausted {
			quota = "exhausted"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", ks.Name, current, quota)
	}
	w.Flush()
	fmt.Printf("%d/%d keys available\n", rotator.AvailableKeys(), rotator.TotalKeys())
}

// env bundles the long-lived collaborators a command wires together.
type env struct {
	cfg     *config.Config
	store   *storage.Store
	service *youtube.Service
	checker *dupcheck.Checker
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}
	return cfg
}

func buildEnv(workerOverride int) *env {
	cfg := loadConfig()
	if workerOverride > 0 {
		cfg.WorkerCount = workerOverride
		if err := cfg.Validate(); err != nil {
			fatalf("%v", err)
		}
	}

	if err := apikey.EnsureDir(cfg.ConfigDir()); err != nil {
		fatalf("create config dir: %v", err)
	}
	rotator, err := apikey.NewRotator(cfg.ConfigDir())
	if err != nil {
		fatalf("load credential sets from %s: %v", cfg.ConfigDir(), err)
	}

	store, err := storage.Open(cfg.DBPath())
	if err != nil {
		fatalf("open state store: %v", err)
	}

	service := youtube.New(rotator, youtube.Options{
		ChunkSize:         cfg.UploadChunkSize,
		RequestsPerSecond: cfg.APIRequestsPerSecond,
		Prompt:            youtube.StdinAuthPrompt,
	})

	return &env{
		cfg:     cfg,
		store:   store,
		service: service,
		checker: dupcheck.New(store, service, cfg.SyncMaxVideos),
	}
}

// buildOrchestrator wires the pool, its caches and a progress printer. The
// returned channel closes when every task in the session has an outcome.
func buildOrchestrator(e *env, checker orchestrator.DuplicateChecker) (*orchestrator.Orchestrator, <-chan struct{}) {
	done := make(chan struct{})

	deps := worker.Deps{
		Service:   e.service,
		Registrar: e.checker,
		Playlists: e.store,
	}
	cfg := worker.Config{
		WorkerCount: e.cfg.WorkerCount,
		DelayFrom:   time.Duration(e.cfg.DelayFrom) * time.Second,
		DelayTo:     time.Duration(e.cfg.DelayTo) * time.Second,
		Retry: retry.Config{
			MaxRetries:     e.cfg.MaxRetries,
			BaseDelay:      e.cfg.RetryBaseDelay,
			MaxDelay:       10 * time.Minute,
			JitterFraction: 0.2,
		},
	}
	events := orchestrator.Events{
		OnProgress: func(total, completed, failed int) {
			fmt.Printf("Progress: %d/%d done, %d failed\n", completed+failed, total, failed)
		},
		OnTaskStatusChanged: func(taskID string, status task.Status) {
			if status == task.StatusFailed {
				fmt.Printf("Task %s failed\n", taskID)
			}
		},
		OnCompleted: func() { close(done) },
	}

	return orchestrator.New(e.store, deps, cfg, checker, events), done
}
