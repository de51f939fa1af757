package cas

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// MySQLSessionStore implements the SessionStore interface keeping the
// session-to-ticket mapping in a database.
//
// Expected schema:
//
//	CREATE TABLE sessions (
//	    s_key     VARCHAR(255) NOT NULL PRIMARY KEY,
//	    s_value   VARCHAR(255) NOT NULL,
//	    s_created DATETIME NOT NULL,
//	    s_updated DATETIME NOT NULL
//	);
type MySQLSessionStore struct {
	DB *sqlx.DB
}

type mysqlSession struct {
	ID      string    `db:"s_key"`
	Value   string    `db:"s_value"`
	Created time.Time `db:"s_created"`
	Updated time.Time `db:"s_updated"`
}

// Read returns the ticket for a session id
func (s *MySQLSessionStore) Read(id string) (string, error) {
	var ticket string
	err := s.DB.Get(&ticket, `SELECT s_value FROM sessions WHERE s_key = ?`, id)

	if err == sql.ErrNoRows {
		return "", errors.Errorf("cas: mysql session store: no session for %v", id)
	}

	if err != nil {
		return "", errors.Wrap(err, "cas: mysql session store: read")
	}

	return ticket, nil
}

// Write stores the ticket for a session id
func (s *MySQLSessionStore) Write(id, ticket string) error {
	now := time.Now().UTC()

	session := mysqlSession{
		ID:      id,
		Value:   ticket,
		Created: now,
		Updated: now,
	}

	_, err := s.DB.NamedExec(
		`INSERT INTO sessions (s_key, s_value, s_created, s_updated)
		 VALUES (:s_key, :s_value, :s_created, :s_updated)
		 ON DUPLICATE KEY UPDATE s_value = VALUES(s_value), s_updated = VALUES(s_updated)`, session)

	return errors.Wrap(err, "cas: mysql session store: write")
}

// Delete removes the session record
func (s *MySQLSessionStore) Delete(id string) error {
	_, err := s.DB.Exec(`DELETE FROM sessions WHERE s_key = ?`, id)
	return errors.Wrap(err, "cas: mysql session store: delete")
}

// Clear removes all session data
func (s *MySQLSessionStore) Clear() error {
	_, err := s.DB.Exec(`DELETE FROM sessions`)
	return errors.Wrap(err, "cas: mysql session store: clear")
}

// DeleteFromTicket removes any session associated with the ticket.
func (s *MySQLSessionStore) DeleteFromTicket(ticket string) error {
	_, err := s.DB.Exec(`DELETE FROM sessions WHERE s_value = ?`, ticket)
	return errors.Wrap(err, "cas: mysql session store: delete from ticket")
}

// ExpireBefore removes sessions created before the cutoff, for periodic
// housekeeping of abandoned sessions.
func (s *MySQLSessionStore) ExpireBefore(cutoff time.Time) error {
	_, err := s.DB.Exec(`DELETE FROM sessions WHERE s_created <= ?`, cutoff.UTC())
	return errors.Wrap(err, "cas: mysql session store: expire")
}
