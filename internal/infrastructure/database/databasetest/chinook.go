// Package databasetest provides a small Chinook-shaped SQLite database for
// tests.
package databasetest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/database"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/logger"
)

const schema = `
CREATE TABLE Artist (
	ArtistId INTEGER PRIMARY KEY,
	Name TEXT
);
CREATE TABLE Album (
	AlbumId INTEGER PRIMARY KEY,
	Title TEXT NOT NULL,
	ArtistId INTEGER NOT NULL REFERENCES Artist(ArtistId)
);
CREATE TABLE Track (
	TrackId INTEGER PRIMARY KEY,
	Name TEXT NOT NULL,
	AlbumId INTEGER REFERENCES Album(AlbumId),
	Milliseconds INTEGER NOT NULL,
	UnitPrice REAL NOT NULL
);
`

// Album is one album of the fixture with its number of tracks.
type Album struct {
	ID     int
	Title  string
	Artist string
	Tracks int
}

// Albums is the fixture content.
var Albums = []Album{
	{ID: 1, Title: "For Those About To Rock We Salute You", Artist: "AC/DC", Tracks: 10},
	{ID: 4, Title: "Let There Be Rock", Artist: "AC/DC", Tracks: 8},
	{ID: 185, Title: "Greatest Hits II", Artist: "Queen", Tracks: 17},
	{ID: 186, Title: "Greatest Hits I", Artist: "Queen", Tracks: 17},
	{ID: 187, Title: "News Of The World", Artist: "Queen", Tracks: 11},
}

var artistIDs = map[string]int{"AC/DC": 1, "Queen": 51}

// NewChinook creates the fixture in a temporary SQLite file and returns an
// adapter over it. The adapter is closed when the test ends.
func NewChinook(t testing.TB, opts ...database.Option) *database.Adapter {
	t.Helper()
	ctx := context.Background()

	dsn := filepath.Join(t.TempDir(), "chinook.db")
	db, err := database.Open(ctx, database.DialectSQLite, dsn, logger.NewNop(), opts...)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := seed(ctx, db); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}
	return db
}

func seed(ctx context.Context, db *database.Adapter) error {
	conn := db.DB()
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	for name, id := range artistIDs {
		if _, err := conn.ExecContext(ctx, `INSERT INTO Artist (ArtistId, Name) VALUES (?, ?)`, id, name); err != nil {
			return fmt.Errorf("artist %s: %w", name, err)
		}
	}
	trackID := 1
	for _, album := range Albums {
		if _, err := conn.ExecContext(ctx, `INSERT INTO Album (AlbumId, Title, ArtistId) VALUES (?, ?, ?)`,
			album.ID, album.Title, artistIDs[album.Artist]); err != nil {
			return fmt.Errorf("album %s: %w", album.Title, err)
		}
		for i := 1; i <= album.Tracks; i++ {
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO Track (TrackId, Name, AlbumId, Milliseconds, UnitPrice) VALUES (?, ?, ?, ?, ?)`,
				trackID, fmt.Sprintf("%s track %d", album.Title, i), album.ID, 180000+i*1000, 0.99); err != nil {
				return fmt.Errorf("track %d: %w", trackID, err)
			}
			trackID++
		}
	}
	return nil
}
