package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edvin/wafbackup/internal/backup"
	"github.com/edvin/wafbackup/internal/config"
	"github.com/edvin/wafbackup/internal/logging"
	"github.com/edvin/wafbackup/internal/metrics"
	"github.com/edvin/wafbackup/internal/ptaf"
	"github.com/edvin/wafbackup/internal/restore"
)

const credentialsWarning = "CHECK THAT CREDENTIALS ARE FILLED IN CORRECTLY! MIXING UP BACKUP_* AND RESTORE_* WILL OVERWRITE THE TENANT YOU MEANT TO SAVE!"

var errBadChoice = errors.New("unknown choice, expected 1, 2 or 3")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error:\n%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stdout, credentialsWarning)
		mode, err := promptMode(stdin, stdout)
		if err != nil {
			return err
		}
		return execute(ctx, mode, config.DefaultCredentialsFile, "", stdout)
	}

	switch args[0] {
	case string(config.ModeBackup), string(config.ModeRestore), string(config.ModeBoth):
		fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
		creds := fs.String("creds", config.DefaultCredentialsFile, "Path to the credentials file")
		dir := fs.String("dir", "", "Backup directory (overrides BACKUP_DIR)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return execute(ctx, config.Mode(args[0]), *creds, *dir, stdout)
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// promptMode asks for the run mode the way operators are used to: a single digit.
func promptMode(stdin io.Reader, stdout io.Writer) (config.Mode, error) {
	fmt.Fprint(stdout, "Do you want to make a backup (1), restore from a backup (2), or both (3)? Enter a number: ")
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read choice: %w", err)
	}
	switch strings.TrimSpace(line) {
	case "1":
		return config.ModeBackup, nil
	case "2":
		return config.ModeRestore, nil
	case "3":
		return config.ModeBoth, nil
	default:
		return "", errBadChoice
	}
}

func execute(ctx context.Context, mode config.Mode, credsPath, dir string, stdout io.Writer) error {
	cfg, err := config.Load(credsPath)
	if err != nil {
		return err
	}
	if dir != "" {
		cfg.BackupDir = dir
	}
	if err := cfg.Validate(mode); err != nil {
		return err
	}

	logger := logging.NewLogger(cfg)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	if mode == config.ModeBackup || mode == config.ModeBoth {
		client, err := ptaf.NewFromConfig(cfg, cfg.Source, logger)
		if err != nil {
			return err
		}
		start := time.Now()
		if _, err := backup.New(cfg, client, logger).Run(ctx); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		fmt.Fprintf(stdout, "Backup is ready in %s (%.2fs)\n", cfg.BackupDir, time.Since(start).Seconds())
	}

	if mode == config.ModeRestore || mode == config.ModeBoth {
		client, err := ptaf.NewFromConfig(cfg, cfg.Destination, logger)
		if err != nil {
			return err
		}
		start := time.Now()
		res, err := restore.New(cfg, client, logger).Run(ctx)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		fmt.Fprintf(stdout, "Restore finished, %d objects skipped (%.2fs)\n", len(res.Skipped), time.Since(start).Seconds())
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  wafbackup                       Interactive: choose backup, restore or both
  wafbackup backup  [-creds FILE] [-dir DIR]
  wafbackup restore [-creds FILE] [-dir DIR]
  wafbackup both    [-creds FILE] [-dir DIR]

Commands:
  backup    Save user templates, policy rule overrides, global lists and user actions
  restore   Recreate a saved backup on the RESTORE_* tenant
  both      Backup, then restore

Flags:
  -creds string   Credentials file with KEY=VALUE lines (default: creds.txt)
  -dir string     Backup directory (default: BACKUP_DIR or ./backup)`)
}
