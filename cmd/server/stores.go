package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	auditrepo "accessguard/internal/audit/repository"
	"accessguard/internal/config"
	"accessguard/internal/db"
	identityrepo "accessguard/internal/identity/repository"
	threatrepo "accessguard/internal/monitor/repository"
	refreshrepo "accessguard/internal/refreshtoken/repository"
	"accessguard/internal/security"
	sessionrepo "accessguard/internal/session/repository"
)

// stores groups the persistence backends. Without DATABASE_URL every store is in memory and
// threats are not persisted.
type stores struct {
	identities identityrepo.Repository
	refresh    refreshrepo.Repository
	sessions   sessionrepo.Repository
	audit      auditrepo.Repository
	threats    threatrepo.Repository

	closers []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Printf("server: close store: %v", err)
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}
	if cfg.DatabaseURL == "" {
		log.Println("server: DATABASE_URL not set, using in-memory stores")
		s.identities = identityrepo.NewMemoryRepository()
		s.refresh = refreshrepo.NewMemoryRepository()
		s.sessions = sessionrepo.NewMemoryRepository()
		s.audit = auditrepo.NewMemoryRepository()
	} else {
		conn, err := db.Open(cfg.DatabaseURL, db.PoolOptions{MaxOpen: 25, MaxIdle: 5, MaxLifetime: 30 * time.Minute})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, conn.Close)
		s.identities = identityrepo.NewPostgresRepository(conn)
		s.refresh = refreshrepo.NewPostgresRepository(conn)
		s.sessions = sessionrepo.NewPostgresRepository(conn)
		s.audit = auditrepo.NewPostgresRepository(conn)
		s.threats = threatrepo.NewPostgresRepository(conn)
		purgeRefreshTokens(ctx, conn)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		s.refresh = refreshrepo.NewRedisRepository(client)
		log.Printf("server: refresh tokens stored in redis at %s", cfg.RedisAddr)
	}
	return s, nil
}

func purgeRefreshTokens(ctx context.Context, conn *sql.DB) {
	n, err := refreshrepo.NewPostgresRepository(conn).PurgeExpired(ctx)
	if err != nil {
		log.Printf("server: purge expired refresh tokens: %v", err)
		return
	}
	if n > 0 {
		log.Printf("server: purged %d expired refresh tokens", n)
	}
}

// signingKeys loads the JWT key material. Outside production a missing secret is replaced by
// a random one, so tokens do not survive a restart.
func signingKeys(cfg *config.Config) (security.SigningKeys, error) {
	access, refresh := cfg.JWTAccessSecret, cfg.JWTRefreshSecret
	if cfg.Env != "production" {
		if access == "" && cfg.JWTPrivateKey == "" {
			access = ephemeralSecret()
			log.Println("server: JWT_ACCESS_SECRET not set, using an ephemeral secret")
		}
		if refresh == "" {
			refresh = ephemeralSecret()
			log.Println("server: JWT_REFRESH_SECRET not set, using an ephemeral secret")
		}
	}
	return security.LoadSigningKeys(access, refresh, cfg.JWTPrivateKey, cfg.JWTPublicKey)
}

func ephemeralSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
