package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/avestan-labs/pigeon/pkg/config"
)

type appStatus struct {
	GeneratedAt      time.Time
	Environment      string
	Port             string
	DatabasePath     string
	Users            int64
	Messages         int64
	Contacts         int64
	PushSubs         int64
	MessagesLast24h  int64
	LatestMessageAt  string
	DBSize           int64
	DBWALSize        int64
	DBMetricsReady   bool
	DBWarning        string
	StorageWarnings  []string
}

func newStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show application statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.NewViper())
			if err != nil {
				return err
			}
			return runStatus(cfg, os.Stdout, asJSON)
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print status as JSON")
	return cmd
}

func runStatus(cfg *config.Config, out io.Writer, asJSON bool) error {
	status := collectStatus(cfg)
	if asJSON {
		return printStatusJSON(out, status)
	}
	printStatus(out, status)
	return nil
}

func collectStatus(cfg *config.Config) appStatus {
	status := appStatus{
		GeneratedAt:  time.Now(),
		Environment:  cfg.Environment,
		Port:         cfg.Port,
		DatabasePath: cfg.DatabasePath,
	}

	if size, err := fileSize(cfg.DatabasePath); err == nil {
		status.DBSize = size
	} else {
		status.StorageWarnings = append(status.StorageWarnings, fmt.Sprintf("database file: %v", err))
	}

	if size, err := fileSize(cfg.DatabasePath + "-wal"); err == nil {
		status.DBWALSize = size
	}

	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}

	dbConn, err := sql.Open("sqlite3", cfg.DatabasePath)
	if err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}
	defer dbConn.Close()

	if err := dbConn.Ping(); err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}

	counts := []struct {
		dest  *int64
		query string
	}{
		{&status.Users, "SELECT COUNT(*) FROM users"},
		{&status.Messages, "SELECT COUNT(*) FROM messages"},
		{&status.Contacts, "SELECT COUNT(*) FROM contacts"},
		{&status.PushSubs, "SELECT COUNT(*) FROM push_subscriptions WHERE revoked_at IS NULL"},
		{&status.MessagesLast24h, "SELECT COUNT(*) FROM messages WHERE datetime(created_at) >= datetime('now', '-1 day')"},
	}
	for _, c := range counts {
		if *c.dest, err = queryInt64(dbConn, c.query); err != nil {
			status.DBWarning = fmt.Sprintf("could not read database stats: %v", err)
			return status
		}
	}

	if status.LatestMessageAt, err = queryString(dbConn, "SELECT COALESCE(MAX(created_at), '') FROM messages"); err != nil {
		status.DBWarning = fmt.Sprintf("could not read database stats: %v", err)
		return status
	}

	status.DBMetricsReady = true
	return status
}

func printStatus(out io.Writer, status appStatus) {
	fmt.Fprintf(out, "Pigeon status (generated %s)\n", status.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Environment:     %s\n", status.Environment)
	fmt.Fprintf(out, "  Port:            %s\n", status.Port)
	fmt.Fprintf(out, "  Database:        %s (%s)\n", status.DatabasePath, formatBytes(status.DBSize))
	if status.DBWALSize > 0 {
		fmt.Fprintf(out, "  WAL:             %s\n", formatBytes(status.DBWALSize))
	}

	if status.DBWarning != "" {
		fmt.Fprintf(out, "  Warning:         %s\n", status.DBWarning)
	}

	if status.DBMetricsReady {
		fmt.Fprintf(out, "  Users:           %d\n", status.Users)
		fmt.Fprintf(out, "  Messages:        %d (%d in last 24h)\n", status.Messages, status.MessagesLast24h)
		fmt.Fprintf(out, "  Contacts:        %d\n", status.Contacts)
		fmt.Fprintf(out, "  Push subs:       %d\n", status.PushSubs)
		if status.LatestMessageAt != "" {
			fmt.Fprintf(out, "  Latest message:  %s\n", status.LatestMessageAt)
		}
	}

	for _, warning := range status.StorageWarnings {
		fmt.Fprintf(out, "  Storage warning: %s\n", warning)
	}
}

func printStatusJSON(out io.Writer, status appStatus) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func queryInt64(db *sql.DB, query string) (int64, error) {
	var value int64
	err := db.QueryRow(query).Scan(&value)
	return value, err
}

func queryString(db *sql.DB, query string) (string, error) {
	var value string
	err := db.QueryRow(query).Scan(&value)
	return value, err
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGT"[exp])
}
