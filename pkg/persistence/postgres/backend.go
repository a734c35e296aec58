package postgres

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	gomigratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // initialises the postgres driver
	"github.com/rs/zerolog/log"

	"github.com/restic115/gateway/pkg/persistence"
)

//go:embed migrations/*.sql
var fs embed.FS

// Backend is the postgres-backed implementation of persistence.Backend.
type Backend struct {
	db *sql.DB
}

// NewBackend opens connectionString with the postgres driver and runs
// any pending migrations before returning.
func NewBackend(connectionString string) (*Backend, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	b := &Backend{db: db}
	if err := b.migrate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) Type() string { return "postgres" }

func (b *Backend) migrate() error {
	driver, err := gomigratepostgres.WithInstance(b.db, &gomigratepostgres.Config{})
	if err != nil {
		return err
	}

	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return err
	}

	log.Info().Msg("starting persistence layer migrations")
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Info().Msg("finished persistence layer migrations")

	return nil
}

func (b *Backend) SaveToken(accessToken, refreshToken string) error {
	_, err := b.db.Exec(queryUpsertToken, accessToken, refreshToken)
	return err
}

func (b *Backend) LoadToken() (string, string, bool, error) {
	var access, refresh string
	err := b.db.QueryRow(queryLoadToken).Scan(&access, &refresh)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return access, refresh, true, nil
}

func (b *Backend) SaveDir(path, fileID string) error {
	_, err := b.db.Exec(queryUpsertDir, path, fileID)
	return err
}

func (b *Backend) LoadDirs() ([]persistence.DirRecord, error) {
	rows, err := b.db.Query(queryLoadDirs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.DirRecord
	for rows.Next() {
		var rec persistence.DirRecord
		if err := rows.Scan(&rec.Path, &rec.FileID); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *Backend) SaveFile(rec persistence.FileRecord) error {
	_, err := b.db.Exec(queryUpsertFile, rec.FileID, rec.ParentID, rec.Filename, rec.IsDir, rec.Size, rec.PickCode)
	return err
}

func (b *Backend) DeleteFile(parentID, filename string) error {
	_, err := b.db.Exec(queryDeleteFile, parentID, filename)
	return err
}

func (b *Backend) LoadFiles() ([]persistence.FileRecord, error) {
	rows, err := b.db.Query(queryLoadFiles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.FileRecord
	for rows.Next() {
		var rec persistence.FileRecord
		if err := rows.Scan(&rec.FileID, &rec.ParentID, &rec.Filename, &rec.IsDir, &rec.Size, &rec.PickCode); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *Backend) Close() error {
	return b.db.Close()
}
