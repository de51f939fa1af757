package cas

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/golang/glog"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// MySQLStore implements the TicketStore interface storing ticket data in a
// database, for CGI-type environments where process memory does not survive
// between requests.
//
// Expected schema:
//
//	CREATE TABLE tickets (
//	    t_id      VARCHAR(255) NOT NULL PRIMARY KEY,
//	    t_data    TEXT NOT NULL,
//	    t_created DATETIME NOT NULL,
//	    t_updated DATETIME NOT NULL
//	);
//
// Registering the SQL driver is left to the embedding application.
type MySQLStore struct {
	DB *sqlx.DB
}

type mysqlTicket struct {
	ID      string    `db:"t_id"`
	Data    string    `db:"t_data"` // AuthenticationResponse in JSON format
	Created time.Time `db:"t_created"`
	Updated time.Time `db:"t_updated"`
}

// Read returns the AuthenticationResponse for a ticket
func (s *MySQLStore) Read(id string) (*AuthenticationResponse, error) {
	if id == "" {
		return nil, ErrInvalidTicket
	}

	var data string
	err := s.DB.Get(&data, `SELECT t_data FROM tickets WHERE t_id = ?`, id)

	if err == sql.ErrNoRows {
		return nil, ErrInvalidTicket
	}

	if err != nil {
		return nil, errors.Wrap(err, "cas: mysql ticket store: read")
	}

	var a AuthenticationResponse
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, errors.Wrap(err, "cas: mysql ticket store: decode ticket data")
	}

	if glog.V(2) {
		glog.Infof("cas: mysql ticket store: read ticket %v for user %v", id, a.User)
	}

	return &a, nil
}

// Write stores the AuthenticationResponse for a ticket
func (s *MySQLStore) Write(id string, ticket *AuthenticationResponse) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return errors.Wrap(err, "cas: mysql ticket store: encode ticket data")
	}

	now := time.Now().UTC()

	t := mysqlTicket{
		ID:      id,
		Data:    string(data),
		Created: now,
		Updated: now,
	}

	_, err = s.DB.NamedExec(
		`INSERT INTO tickets (t_id, t_data, t_created, t_updated)
		 VALUES (:t_id, :t_data, :t_created, :t_updated)
		 ON DUPLICATE KEY UPDATE t_data = VALUES(t_data), t_updated = VALUES(t_updated)`, t)

	return errors.Wrap(err, "cas: mysql ticket store: write")
}

// Delete removes the AuthenticationResponse for a ticket
func (s *MySQLStore) Delete(id string) error {
	_, err := s.DB.Exec(`DELETE FROM tickets WHERE t_id = ?`, id)
	return errors.Wrap(err, "cas: mysql ticket store: delete")
}

// Clear removes all ticket data
func (s *MySQLStore) Clear() error {
	_, err := s.DB.Exec(`DELETE FROM tickets`)
	return errors.Wrap(err, "cas: mysql ticket store: clear")
}
