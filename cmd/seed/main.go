// seed creates the initial super administrator and, with -dev, sample identities for local
// testing. Idempotent: identities whose email is already registered are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"accessguard/internal/audit"
	auditrepo "accessguard/internal/audit/repository"
	"accessguard/internal/config"
	"accessguard/internal/db"
	identityrepo "accessguard/internal/identity/repository"
	"accessguard/internal/identity/service"
	"accessguard/internal/platform/rbac"
	"accessguard/internal/security"
	"accessguard/internal/session"
	sessionrepo "accessguard/internal/session/repository"
)

type seedIdentity struct {
	email, password, first, last string
	role                         rbac.Role
}

var devIdentities = []seedIdentity{
	{"manager@example.com", "Tr0ub4dor&3xYz!", "Morgan", "Reyes", rbac.RoleManager},
	{"employee@example.com", "Qv7!plum-Harbor", "Avery", "Chen", rbac.RoleEmployee},
	{"viewer@example.com", "Kite9?Lantern#w", "Riley", "Okafor", rbac.RoleViewer},
}

func main() {
	adminEmail := flag.String("admin-email", envOr("SEED_ADMIN_EMAIL", "admin@example.com"), "super administrator email")
	adminPassword := flag.String("admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "super administrator password")
	dev := flag.Bool("dev", false, "also create sample manager, employee and viewer identities")
	flag.Parse()

	if *adminPassword == "" {
		log.Fatal("seed: SEED_ADMIN_PASSWORD or -admin-password is required")
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
	// Seeding never opens a session; the in-memory registry only satisfies the service.
	auth := service.NewAuthService(service.Deps{
		Identities: identityrepo.NewPostgresRepository(conn),
		Passwords:  security.NewPasswordEngine(cfg.Argon2Params(), cfg.PasswordPolicy()),
		Sessions:   session.NewRegistry(sessionrepo.NewMemoryRepository(), trail, session.Options{}),
		Audit:      trail,
	}, service.Options{})

	list := []seedIdentity{{*adminEmail, *adminPassword, "System", "Administrator", rbac.RoleSuperAdmin}}
	if *dev {
		list = append(list, devIdentities...)
	}

	ctx := context.Background()
	created := 0
	for _, s := range list {
		p, err := auth.Register(ctx, service.RegisterInput{
			Email:     s.email,
			Password:  s.password,
			FirstName: s.first,
			LastName:  s.last,
			Role:      s.role,
			IP:        "127.0.0.1",
			UserAgent: "accessguard-seed",
		})
		if errors.Is(err, service.ErrEmailTaken) {
			log.Printf("seed: %s already exists, skipping", s.email)
			continue
		}
		if err != nil {
			log.Fatalf("seed: register %s: %v", s.email, err)
		}
		created++
		fmt.Printf("created %s (%s) id=%s\n", p.Email, p.Role, p.ID)
	}
	trail.Wait()
	log.Printf("seed: created %d identities", created)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
