package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
)

type Config struct {
	Hosts       []string
	Port        int
	Keyspace    string
	Consistency string
	Replication int
	Timeout     time.Duration
	Attempts    int
	RetryDelay  time.Duration

	// DisableHostLookup keeps the driver on the configured hosts, for nodes
	// behind NAT whose advertised addresses are unreachable.
	DisableHostLookup bool
}

// Connect opens a session on cfg.Keyspace, creating the keyspace and tables
// first. Start-up races with the cluster are retried.
func Connect(cfg Config, log zerolog.Logger) (*gocql.Session, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 20
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	var lastErr error
	for i := 0; i < cfg.Attempts; i++ {
		s, err := connectOnce(cfg)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", i+1).Int("of", cfg.Attempts).Msg("scylla connect retry")
			time.Sleep(cfg.RetryDelay)
			continue
		}
		if err := EnsureSchema(s, cfg.Keyspace); err != nil {
			s.Close()
			lastErr = err
			log.Warn().Err(err).Int("attempt", i+1).Int("of", cfg.Attempts).Msg("ensure schema retry")
			time.Sleep(cfg.RetryDelay)
			continue
		}
		return s, nil
	}
	return nil, fmt.Errorf("scylla not ready after %d attempts: %w", cfg.Attempts, lastErr)
}

func connectOnce(cfg Config) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Timeout = cfg.Timeout
	if cluster.Timeout <= 0 {
		cluster.Timeout = 5 * time.Second
	}
	cluster.Consistency = ParseConsistency(cfg.Consistency)
	cluster.DisableInitialHostLookup = cfg.DisableHostLookup

	tmp, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	err = EnsureKeyspace(tmp, cfg.Keyspace, cfg.Replication)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("ensure keyspace %s: %w", cfg.Keyspace, err)
	}

	cluster.Keyspace = cfg.Keyspace
	return cluster.CreateSession()
}

func EnsureKeyspace(session *gocql.Session, keyspace string, replicationFactor int) error {
	if replicationFactor <= 0 {
		replicationFactor = 3
	}
	stmt := fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}", keyspace, replicationFactor)
	return session.Query(stmt).Exec()
}

func EnsureSchema(session *gocql.Session, keyspace string) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.users (
			id uuid PRIMARY KEY,
			email text,
			username text,
			password_hash text,
			role text,
			must_change boolean,
			entitlements set<text>,
			created_at timestamp
		)`, keyspace),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS users_email_idx ON %s.users (email)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.access_requests (
			id uuid PRIMARY KEY,
			user_id uuid,
			kind text,
			title text,
			description text,
			movie_id text,
			status text,
			admin_response text,
			created_at timestamp,
			updated_at timestamp
		)`, keyspace),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS access_requests_user_idx ON %s.access_requests (user_id)`, keyspace),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS access_requests_status_idx ON %s.access_requests (status)`, keyspace),
	}
	for _, stmt := range stmts {
		if err := session.Query(stmt).Exec(); err != nil {
			return err
		}
	}
	return ensureEntitlementsColumn(session, keyspace)
}

// ensureEntitlementsColumn upgrades users tables created before entitlements
// existed.
func ensureEntitlementsColumn(session *gocql.Session, keyspace string) error {
	exists, err := columnExists(session, keyspace, "users", "entitlements")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return session.Query(fmt.Sprintf(`ALTER TABLE %s.users ADD entitlements set<text>`, keyspace)).Exec()
}

func columnExists(session *gocql.Session, keyspace, table, column string) (bool, error) {
	var name string
	err := session.Query(`SELECT column_name FROM system_schema.columns WHERE keyspace_name=? AND table_name=? AND column_name=?`,
		strings.ToLower(keyspace), table, column).Scan(&name)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func ParseConsistency(c string) gocql.Consistency {
	switch strings.ToUpper(strings.TrimSpace(c)) {
	case "ONE":
		return gocql.One
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "ALL":
		return gocql.All
	default:
		return gocql.Quorum
	}
}
