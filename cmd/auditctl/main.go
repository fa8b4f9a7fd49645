// auditctl maintains the audit trail offline.
//
//	auditctl purge [-days N]            delete events older than N days (AUDIT_RETENTION_DAYS)
//	auditctl report -from T [-to T]     print a compliance report as JSON (RFC 3339 times)
//	auditctl verify -from T [-to T]     recompute integrity hashes and list tampered events
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"accessguard/internal/audit"
	auditrepo "accessguard/internal/audit/repository"
	"accessguard/internal/config"
	"accessguard/internal/db"
)

const actorID = "auditctl"

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	conn, err := db.Open(cfg.DatabaseURL, db.PoolOptions{MaxOpen: 2})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	trail := audit.NewTrail(auditrepo.NewPostgresRepository(conn), nil)
	defer trail.Wait()
	ctx := context.Background()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "purge":
		fs := flag.NewFlagSet("purge", flag.ExitOnError)
		days := fs.Int("days", cfg.AuditRetentionDays, "retention horizon in days")
		_ = fs.Parse(args)
		n, err := trail.PurgeOlderThan(ctx, *days, actorID)
		if err != nil {
			log.Fatalf("purge: %v", err)
		}
		fmt.Printf("purged %d events older than %d days\n", n, *days)
	case "report":
		from, to := window("report", args)
		rep, err := trail.ComplianceReport(ctx, from, to)
		if err != nil {
			log.Fatalf("report: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Fatalf("report: %v", err)
		}
	case "verify":
		from, to := window("verify", args)
		events, err := trail.ByTimeRange(ctx, from, to, 0)
		if err != nil {
			log.Fatalf("verify: %v", err)
		}
		bad := 0
		for _, e := range events {
			if !audit.VerifyIntegrity(e) {
				bad++
				fmt.Printf("tampered: %s %s %s at %s\n", e.ID, e.Action, e.EntityID, e.Timestamp.Format(time.RFC3339))
			}
		}
		fmt.Printf("checked %d events, %d failed integrity\n", len(events), bad)
		if bad > 0 {
			os.Exit(2)
		}
	default:
		usage()
	}
}

func window(name string, args []string) (time.Time, time.Time) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fromStr := fs.String("from", "", "start of the window (RFC 3339), required")
	toStr := fs.String("to", "", "end of the window (RFC 3339), default now")
	_ = fs.Parse(args)
	from, err := time.Parse(time.RFC3339, *fromStr)
	if err != nil {
		log.Fatalf("%s: -from: %v", name, err)
	}
	to := time.Now().UTC()
	if *toStr != "" {
		if to, err = time.Parse(time.RFC3339, *toStr); err != nil {
			log.Fatalf("%s: -to: %v", name, err)
		}
	}
	return from, to
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: auditctl purge [-days N] | report -from T [-to T] | verify -from T [-to T]")
	os.Exit(1)
}
