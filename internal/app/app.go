package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"qslm/internal/archive"
	"qslm/internal/config"
	"qslm/internal/database"
	"qslm/internal/database/migrations"
	"qslm/internal/encryption"
	"qslm/internal/model"
	"qslm/internal/qsl"
)

// App is the application layer between the CLI and the qsl.Service.
// It constructs all dependencies from config, exposes the operations that
// touch the filesystem (logbook, imports, archives), and manages the DB
// lifecycle on Close.
type App struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	service   *qsl.Service
	encryptor *encryption.AgeEncryptor
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "AddLog", "IssueCards");
// it tags every log line of the run. The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		// A brand-new database gets its schema applied on first open;
		// anything else (behind, ahead, dirty) is the user's call.
		if !errors.Is(err, migrations.ErrFreshDatabase) {
			db.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating fresh database: %w", err)
		}
	}

	opID := uuid.NewString()
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger.Info("starting operation", "operation", operation)

	svc := qsl.NewService(db, &slogAdapter{l: logger}, qsl.RealClock{}, rand.Reader)

	return &App{
		cfg:       cfg,
		db:        db,
		service:   svc,
		encryptor: encryption.NewAgeEncryptor(cfg.Encryption),
		logFile:   logFile,
	}, nil
}

// Service exposes the underlying engine for commands that need it directly.
func (a *App) Service() *qsl.Service {
	return a.service
}

// AddLog records the contact and appends its ADIF record to the logbook
// file. A logbook append failure does not roll back the database insert;
// the id is returned alongside the error.
func (a *App) AddLog(log *model.Log) (int64, error) {
	id, err := a.service.AddLog(log, a.cfg.PrimaryCallsign)
	if err != nil {
		return 0, err
	}

	if a.cfg.LogbookPath != "" {
		if err := a.appendLogbook(log); err != nil {
			return id, fmt.Errorf("appending logbook: %w", err)
		}
	}
	return id, nil
}

func (a *App) appendLogbook(log *model.Log) error {
	f, err := os.OpenFile(a.cfg.LogbookPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening logbook: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, qsl.ADIFRecord(log)); err != nil {
		return fmt.Errorf("writing logbook record: %w", err)
	}
	return nil
}

// ImportADIF reads ADIF records from path into the database.
func (a *App) ImportADIF(path string) (*qsl.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	known, err := a.service.Callsigns()
	if err != nil {
		return nil, err
	}
	return a.service.ImportADIF(f, known, a.cfg.PrimaryCallsign)
}

// ExportADIF writes every log as ADIF to path.
func (a *App) ExportADIF(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := a.service.ExportADIF(f); err != nil {
		return err
	}
	return f.Close()
}

// SetupEncryption generates the archive key pair protected by passphrase.
func (a *App) SetupEncryption(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// EncryptionConfigured reports whether the archive key pair exists.
func (a *App) EncryptionConfigured() bool {
	return a.encryptor.IsConfigured()
}

// Archive snapshots the database, encrypts the snapshot with the archive
// public key, and uploads it to the configured destination. Returns the
// snapshot name.
func (a *App) Archive() (string, error) {
	if !a.encryptor.IsConfigured() {
		return "", fmt.Errorf("archive encryption not configured: run 'qslm archive setup' first")
	}

	dest, err := archive.NewDestinationFromConfig(a.cfg.Archive)
	if err != nil {
		return "", fmt.Errorf("creating archive destination: %w", err)
	}
	if err := dest.ValidateSetup(); err != nil {
		return "", fmt.Errorf("validating archive destination: %w", err)
	}

	snapFile, err := os.CreateTemp("", "qslm-snapshot-*.db")
	if err != nil {
		return "", fmt.Errorf("creating snapshot temp file: %w", err)
	}
	snapPath := snapFile.Name()
	snapFile.Close()
	os.Remove(snapPath) // VACUUM INTO requires the path to not exist
	defer os.Remove(snapPath)

	if err := a.db.BackupTo(snapPath); err != nil {
		return "", err
	}

	encFile, err := os.CreateTemp("", "qslm-archive-*.db.age")
	if err != nil {
		return "", fmt.Errorf("creating archive temp file: %w", err)
	}
	encPath := encFile.Name()
	defer os.Remove(encPath)

	snap, err := os.Open(snapPath)
	if err != nil {
		encFile.Close()
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	err = a.encryptor.Encrypt(snap, encFile)
	snap.Close()
	if err != nil {
		encFile.Close()
		return "", err
	}
	if err := encFile.Close(); err != nil {
		return "", fmt.Errorf("finalizing archive file: %w", err)
	}

	name := fmt.Sprintf("qslm-%s.db.age", time.Now().UTC().Format("20060102T150405Z"))
	f, err := os.Open(encPath)
	if err != nil {
		return "", fmt.Errorf("opening archive for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat archive file: %w", err)
	}
	if err := dest.Put(name, f, info.Size()); err != nil {
		return "", fmt.Errorf("uploading archive: %w", err)
	}
	return name, nil
}

// Close closes the database and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
