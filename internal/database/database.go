package database

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/config"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5433
)

// DB wraps gorm.DB and includes a reference to an embedded process if active
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
	log      *logrus.Entry
}

// cleanupStaleEmbeddedPostgres cleans up leftover processes from a previous crash
func cleanupStaleEmbeddedPostgres(log *logrus.Entry) {
	pidFile := filepath.Join(embeddedDataPath, "postmaster.pid")

	data, err := os.ReadFile(pidFile)
	if err != nil {
		// No pid file = clean state
		return
	}

	// PID is the first line of postmaster.pid
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	if !scanner.Scan() {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		log.WithError(err).Warn("could not parse PID from postmaster.pid")
		return
	}
	plog := log.WithField("pid", pid)

	process, err := os.FindProcess(pid)
	if err != nil {
		plog.Info("removing stale postmaster.pid, process not found")
		os.Remove(pidFile)
		return
	}

	// On Unix, FindProcess always succeeds; signal 0 checks liveness
	if err := process.Signal(syscall.Signal(0)); err != nil {
		plog.Info("removing stale postmaster.pid, process not running")
		os.Remove(pidFile)
		return
	}

	plog.Warn("found orphaned PostgreSQL process, stopping it")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		plog.WithError(err).Warn("could not send SIGTERM")
	}

	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if err := process.Signal(syscall.Signal(0)); err != nil {
			plog.Info("orphaned PostgreSQL process stopped")
			os.Remove(pidFile)
			return
		}
	}

	plog.Warn("process did not stop gracefully, sending SIGKILL")
	process.Kill()
	time.Sleep(500 * time.Millisecond)
	os.Remove(pidFile)
}

// isPortInUse checks if a port is already in use
func isPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Connect establishes a connection to PostgreSQL. A localhost configuration
// without password starts an embedded server instead.
func Connect(cfg config.DatabaseConfig, l *logger.Logger) (*DB, error) {
	log := logger.Or(l).Component("database")
	var embedded *embeddedpostgres.EmbeddedPostgres

	isEmbedded := cfg.Host == "localhost" && cfg.Password == ""

	password := cfg.Password
	if isEmbedded {
		log.Info("starting embedded PostgreSQL")

		cleanupStaleEmbeddedPostgres(log)

		if isPortInUse(embeddedPort) {
			log.WithField("port", embeddedPort).Warn("port still in use, waiting for release")
			for i := 0; i < 6; i++ {
				time.Sleep(500 * time.Millisecond)
				if !isPortInUse(embeddedPort) {
					break
				}
			}
			if isPortInUse(embeddedPort) {
				return nil, fmt.Errorf("port %d is still in use by another process", embeddedPort)
			}
		}

		embeddedCfg := embeddedpostgres.DefaultConfig().
			DataPath(embeddedDataPath).
			Port(uint32(embeddedPort)).
			Database(cfg.Database).
			Username(cfg.Username).
			Password("postgres")

		embedded = embeddedpostgres.NewDatabase(embeddedCfg)
		if err := embedded.Start(); err != nil {
			return nil, fmt.Errorf("failed to start embedded database: %w", err)
		}

		cfg.Port = strconv.Itoa(embeddedPort)
		password = "postgres"
		log.WithField("port", embeddedPort).Info("embedded PostgreSQL started")
	} else {
		log.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port}).Info("connecting to external PostgreSQL")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		password,
		cfg.Database,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info("database connection established")

	return &DB{DB: db, embedded: embedded, log: log}, nil
}

// Migrate synchronizes the schema of every persisted record
func (db *DB) Migrate() error {
	if err := db.DB.AutoMigrate(store.Models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db.log.Info("schema migrated")
	return nil
}

// Ping checks that the database answers
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close ensures the database connection and embedded process are shut down
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if db.embedded != nil {
		db.log.Info("stopping embedded PostgreSQL")
		if stopErr := db.embedded.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}
