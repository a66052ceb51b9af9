// Package dbadapter implements the database protocol adapter (§4.9):
// connection-string parsing for mysql/postgresql/mongodb URLs, a small
// connection registry, and a simulated-by-default execution path. Real
// driver support is wired behind the same contract as an optional back end
// — github.com/go-sql-driver/mysql and github.com/lib/pq for the two SQL
// dialects (both present in the retrieval pack's go.mod files), and
// go.mongodb.org/mongo-driver/mongo for MongoDB — selected by the
// descriptor's driver tag rather than always exercised, since the default
// build never dials a real database.
package dbadapter

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/registry"
	"github.com/firasghr/loadspiker-engine/timing"
)

// MaxEntries bounds the database connection registry, per §3's invariant (b).
const MaxEntries = 100

// defaultPorts maps each supported scheme to its conventional port, per §6.
var defaultPorts = map[string]int{
	"mysql":      3306,
	"postgresql": 5432,
	"postgres":   5432,
	"mongodb":    27017,
	"mongo":      27017,
}

// ParsedConnection is the decomposed form of a
// {mysql|postgresql|mongodb}://[user[:pass]@]host[:port][/database] string.
type ParsedConnection struct {
	Scheme   string
	User     string
	Password string
	Host     string
	Port     int
	Database string
}

// ParseConnectionString parses raw per §4.9, filling in the scheme's default
// port when absent.
func ParseConnectionString(raw string) (ParsedConnection, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ParsedConnection{}, fmt.Errorf("dbadapter: parse connection string: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	port, ok := defaultPorts[scheme]
	if !ok {
		return ParsedConnection{}, fmt.Errorf("dbadapter: unsupported scheme %q", scheme)
	}

	host := u.Hostname()
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}

	password, _ := u.User.Password()
	return ParsedConnection{
		Scheme:   scheme,
		User:     u.User.Username(),
		Password: password,
		Host:     host,
		Port:     port,
		Database: strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// driverBackend is satisfied by either the simulated backend or a real one.
type driverBackend interface {
	Query(ctx context.Context, query string) (rowsAffected, rowsReturned int64, resultSet []map[string]interface{}, err error)
	Close() error
}

type entry struct {
	backend driverBackend
}

func (e *entry) Close() error {
	if e.backend == nil {
		return nil
	}
	return e.backend.Close()
}

// Adapter manages database connections keyed by the raw connection string.
type Adapter struct {
	registry *registry.Registry[string, *entry]
	metrics  *metrics.Aggregator
}

// New creates a database adapter with its own bounded registry.
func New(m *metrics.Aggregator) *Adapter {
	return &Adapter{registry: registry.New[string, *entry](MaxEntries), metrics: m}
}

// Connect parses connStr and, for driver == "simulated" (the default),
// records success without dialing anything. For "mysql", "postgres", or
// "mongo" it opens a real connection via the matching package.
func (a *Adapter) Connect(connStr, driver string) model.ResponseRecord {
	start := timing.Start()

	parsed, err := ParseConnectionString(connStr)
	if err != nil {
		return a.fail(start, err.Error())
	}

	if err := a.registry.Reserve(connStr); err != nil {
		return a.fail(start, "reserve: "+err.Error())
	}

	backend, err := openBackend(parsed, driver)
	if err != nil {
		a.registry.Cancel(connStr)
		return a.fail(start, "connect: "+err.Error())
	}

	elapsed := timing.ElapsedMicros(start)
	a.registry.Commit(connStr, &entry{backend: backend})
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolDatabase, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
}

// Query runs query against the connection for connStr. In the simulated
// backend this inspects the first keyword (SELECT/INSERT/UPDATE/DELETE) and
// synthesises rows_affected / rows_returned / a small result set, per §4.9.
func (a *Adapter) Query(connStr, query string) model.ResponseRecord {
	start := timing.Start()

	e, ok := a.registry.Find(connStr)
	if !ok {
		return a.fail(start, "not connected")
	}

	rowsAffected, rowsReturned, resultSet, err := e.backend.Query(context.Background(), query)
	elapsed := timing.ElapsedMicros(start)
	if err != nil {
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolDatabase, Success: false, ErrorMessage: "dbadapter: query: " + err.Error(), ResponseTimeUS: elapsed}
	}

	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{
		Protocol:       model.ProtocolDatabase,
		StatusCode:     200,
		Success:        true,
		ResponseTimeUS: elapsed,
		DB:             &model.DBTrailer{RowsAffected: rowsAffected, RowsReturned: rowsReturned, ResultSet: resultSet},
	}
}

// Disconnect closes the connection for connStr. Idempotent.
func (a *Adapter) Disconnect(connStr string) model.ResponseRecord {
	start := timing.Start()
	_ = a.registry.Close(connStr)
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolDatabase, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
}

func (a *Adapter) fail(start time.Time, msg string) model.ResponseRecord {
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, false)
	return model.ResponseRecord{Protocol: model.ProtocolDatabase, Success: false, ErrorMessage: "dbadapter: " + msg, ResponseTimeUS: elapsed}
}

func openBackend(parsed ParsedConnection, driver string) (driverBackend, error) {
	switch driver {
	case "", "simulated":
		return &simulatedBackend{}, nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", parsed.User, parsed.Password, parsed.Host, parsed.Port, parsed.Database)
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, err
		}
		return &sqlBackend{db: db}, nil
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", parsed.User, parsed.Password, parsed.Host, parsed.Port, parsed.Database)
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		return &sqlBackend{db: db}, nil
	case "mongo", "mongodb":
		uri := fmt.Sprintf("mongodb://%s:%d", parsed.Host, parsed.Port)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return nil, err
		}
		return &mongoBackend{client: client, database: parsed.Database}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}
