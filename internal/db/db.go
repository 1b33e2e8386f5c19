package db

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// Open connects to Postgres using a lib/pq connection string and verifies
// the connection with a ping. The caller owns closing the handle.
func Open(url string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
