package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// ErrTransactionConflict indicates a SurrealDB transaction conflict between concurrent writers.
var ErrTransactionConflict = errors.New("transaction conflict")

const surrealSchema = `
    DEFINE TABLE IF NOT EXISTS kv SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS key ON kv TYPE string;
    DEFINE FIELD IF NOT EXISTS value ON kv TYPE string;
    DEFINE FIELD IF NOT EXISTS updated_at ON kv TYPE datetime DEFAULT time::now();
`

// SurrealConfig holds SurrealDB connection configuration.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// SurrealStore keeps values in a SurrealDB table. A LIVE query delivers changes made
// by any client of the same namespace and database, including other hosts.
type SurrealStore struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	logger *slog.Logger

	subs  subscribers
	known known

	mu     sync.Mutex
	liveID string
	closed bool
	stop   chan struct{}
}

type kvRow struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewSurrealStore connects with an auto-reconnecting WebSocket, ensures the schema
// and starts the LIVE query.
func NewSurrealStore(ctx context.Context, cfg SurrealConfig, log *slog.Logger) (*SurrealStore, error) {
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())
	codec := surrealcbor.New()

	// gorillaws adds /rpc itself.
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	log.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	auth := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}
	if _, err := surrealdb.Query[any](ctx, db, surrealSchema, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &SurrealStore{conn: conn, db: db, logger: log, stop: make(chan struct{})}

	live, err := surrealdb.Live(ctx, db, models.Table("kv"), false)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("live kv: %w", err)
	}
	s.liveID = live.String()
	notifications, err := db.LiveNotifications(s.liveID)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("live notifications: %w", err)
	}
	go s.watch(notifications)

	log.Info("SurrealDB store ready", "namespace", cfg.Namespace, "database", cfg.Database)
	return s, nil
}

func (s *SurrealStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	results, err := surrealdb.Query[[]kvRow](ctx, s.db,
		`SELECT key, value FROM type::record("kv", $key)`,
		map[string]any{"key": key})
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", false, nil
	}
	return (*results)[0].Result[0].Value, true, nil
}

func (s *SurrealStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	_, err := surrealdb.Query[any](ctx, s.db,
		`UPSERT type::record("kv", $key) SET key = $key, value = $value, updated_at = time::now()`,
		map[string]any{"key": key, "value": value})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, wrapQueryError(err))
	}

	s.known.observe(key, value, true)
	s.subs.notify(key)
	return nil
}

func (s *SurrealStore) Subscribe(fn func(key string)) func() {
	return s.subs.add(fn)
}

// Close kills the LIVE query and closes the connection.
func (s *SurrealStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := surrealdb.Kill(ctx, s.db, s.liveID); err != nil {
		s.logger.Warn("kill live query", "error", err)
	}
	s.logger.Info("closing SurrealDB connection")
	close(s.stop)
	return s.conn.Close(ctx)
}

// watch turns LIVE notifications into subscriber calls. Own writes are filtered
// by the known-value check.
func (s *SurrealStore) watch(notifications chan connection.Notification) {
	for {
		var n connection.Notification
		select {
		case <-s.stop:
			return
		case received, ok := <-notifications:
			if !ok {
				return
			}
			n = received
		}

		key, value, ok := decodeKV(n.Result)
		if !ok {
			s.logger.Debug("ignoring live notification", "action", n.Action)
			continue
		}
		present := n.Action != connection.DeleteAction
		if s.known.observe(key, value, present) {
			s.logger.Debug("external change", "key", key, "action", n.Action)
			s.subs.notify(key)
		}
	}
}

func decodeKV(result any) (key, value string, ok bool) {
	row, isMap := result.(map[string]any)
	if !isMap {
		return "", "", false
	}
	key, ok = row["key"].(string)
	if !ok {
		return "", "", false
	}
	value, _ = row["value"].(string)
	return key, value, true
}

// wrapQueryError maps known SurrealDB query errors onto sentinels.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) && strings.Contains(queryErr.Message, "Transaction conflict") {
		return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
	}
	return err
}
