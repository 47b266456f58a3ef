package livy

import (
	"context"
	"log/slog"
)

// Connection is the narrow imperative surface handed to the SQL-dispatch
// layer. Cancel and Rollback exist to satisfy that surface; the remote
// engine has no transaction concept, so they only log.
type Connection struct {
	manager *Manager
	cursor  *Cursor
	logger  *slog.Logger
}

func newConnection(m *Manager, s *Session) *Connection {
	return &Connection{
		manager: m,
		cursor:  &Cursor{manager: m, session: s, logger: m.logger},
		logger:  m.logger,
	}
}

func (c *Connection) Cursor() *Cursor {
	return c.cursor
}

func (c *Connection) SessionID() string {
	return c.cursor.session.ID()
}

func (c *Connection) Close() {
	c.logger.Debug("connection close")
	c.cursor.Close()
}

func (c *Connection) Cancel() {
	c.logger.Debug("not implemented: cancel")
}

func (c *Connection) Rollback() {
	c.logger.Debug("not implemented: rollback")
}

// ColumnDescription mirrors the conventional 7-slot cursor description:
// name, type code, display size, internal size, precision, scale, nullable.
// The four middle slots are always nil for Livy results.
type ColumnDescription struct {
	Name         string
	TypeCode     string
	DisplaySize  any
	InternalSize any
	Precision    any
	Scale        any
	Nullable     bool
}

// Cursor submits statements through the backing session and owns the
// result set of the last execute. The result is replaced wholesale on each
// execute, never appended to.
type Cursor struct {
	manager *Manager
	session *Session
	logger  *slog.Logger

	rows       [][]any
	schema     []Field
	fetchIndex int
}

// Execute renders bindings into the statement, normalizes it, submits it,
// and blocks until the statement resolves.
func (c *Cursor) Execute(ctx context.Context, sql string, bindings ...any) error {
	// A prior failed submission flags the session for replacement;
	// reconnect through the manager before submitting.
	if c.session.restartRequired() {
		conn, err := c.manager.Connect(ctx)
		if err != nil {
			return err
		}
		c.session = conn.cursor.session
	}

	code := normalizeSQL(renderStatement(sql, bindings))

	stmtID, err := c.session.submitStatement(ctx, code)
	if err != nil {
		c.session.markNeedsNew(true)
		c.rows, c.schema, c.fetchIndex = nil, nil, 0
		return err
	}

	rs, err := c.session.awaitResult(ctx, stmtID)
	if err != nil {
		c.rows, c.schema, c.fetchIndex = nil, nil, 0
		return err
	}

	c.rows = rs.Rows
	c.schema = rs.Schema
	c.fetchIndex = 0
	return nil
}

// FetchOne returns the next unread row, or nil when exhausted.
func (c *Cursor) FetchOne() []any {
	if c.rows != nil && c.fetchIndex < len(c.rows) {
		row := c.rows[c.fetchIndex]
		c.fetchIndex++
		return row
	}
	return nil
}

// FetchAll returns every row of the last result.
func (c *Cursor) FetchAll() [][]any {
	return c.rows
}

// Description describes the columns of the last result.
func (c *Cursor) Description() []ColumnDescription {
	desc := make([]ColumnDescription, len(c.schema))
	for i, f := range c.schema {
		desc[i] = ColumnDescription{
			Name:     f.Name,
			TypeCode: f.Type,
			Nullable: f.Nullable,
		}
	}
	return desc
}

func (c *Cursor) Close() {
	c.rows = nil
	c.fetchIndex = 0
}
