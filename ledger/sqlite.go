// Copyright (c) 2024 The Batchline Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package ledger

import (
	"context"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// This file implements the ledger over a SQLite database shared with the
// metadata store. The store serializes concurrent writers; the core never
// opens a transaction spanning multiple writes.

const schema = `
CREATE TABLE IF NOT EXISTS processed_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	folder_id INTEGER NOT NULL,
	file_name TEXT NOT NULL,
	file_checksum TEXT NOT NULL,
	resend_flag INTEGER NOT NULL DEFAULT 0,
	copy_destination TEXT NOT NULL DEFAULT '',
	ftp_destination TEXT NOT NULL DEFAULT '',
	email_destination TEXT NOT NULL DEFAULT '',
	sent_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS processed_files_by_folder
	ON processed_files(folder_id, file_checksum);
`

type SQLiteLedger struct {
	pool *sqlitex.Pool
}

// opens (creating if necessary) a SQLite-backed ledger at the given path
func OpenSQLite(path string) (*SQLiteLedger, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize: 4,
	})
	if err != nil {
		return nil, err
	}
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, err
	}
	err = sqlitex.ExecuteScript(conn, schema, nil)
	pool.Put(conn)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &SQLiteLedger{pool: pool}, nil
}

func (l *SQLiteLedger) FindByFolder(folderId int64) ([]Entry, error) {
	conn, err := l.pool.Take(context.Background())
	if err != nil {
		return nil, err
	}
	defer l.pool.Put(conn)

	entries := make([]Entry, 0)
	err = sqlitex.ExecuteTransient(conn,
		`SELECT folder_id, file_name, file_checksum, resend_flag,
		        copy_destination, ftp_destination, email_destination, sent_at
		 FROM processed_files WHERE folder_id = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{folderId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry := Entry{
					FolderId:         stmt.ColumnInt64(0),
					FileName:         stmt.ColumnText(1),
					Checksum:         stmt.ColumnText(2),
					ResendFlag:       stmt.ColumnInt64(3) != 0,
					CopyDestination:  stmt.ColumnText(4),
					FtpDestination:   stmt.ColumnText(5),
					EmailDestination: stmt.ColumnText(6),
				}
				if sentAt := stmt.ColumnText(7); sentAt != "" {
					entry.SentAt, _ = time.Parse(time.RFC3339, sentAt)
				}
				entries = append(entries, entry)
				return nil
			},
		})
	return entries, err
}

func (l *SQLiteLedger) Insert(entry Entry) error {
	conn, err := l.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer l.pool.Put(conn)

	sentAt := ""
	if !entry.SentAt.IsZero() {
		sentAt = entry.SentAt.Format(time.RFC3339)
	}
	resend := int64(0)
	if entry.ResendFlag {
		resend = 1
	}
	return sqlitex.ExecuteTransient(conn,
		`INSERT INTO processed_files (folder_id, file_name, file_checksum, resend_flag,
		        copy_destination, ftp_destination, email_destination, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				entry.FolderId, entry.FileName, entry.Checksum, resend,
				entry.CopyDestination, entry.FtpDestination, entry.EmailDestination, sentAt,
			},
		})
}

func (l *SQLiteLedger) Close() error {
	return l.pool.Close()
}
