package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3" // SQLite driver

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// Repository implements the ports.SignalJournal and ports.TradeRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/confluence_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		signal_id TEXT NOT NULL,
		type TEXT NOT NULL,
		direction TEXT NOT NULL,
		order_position INTEGER NOT NULL,
		bar INTEGER NOT NULL,
		time TIMESTAMP NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		use_stop_loss_rr INTEGER NOT NULL,
		stop_loss_plus_ticks INTEGER NOT NULL,
		max_bars_between INTEGER NOT NULL,
		combined INTEGER NOT NULL,
		standalone INTEGER NOT NULL,
		display_only INTEGER NOT NULL,
		trade_generated INTEGER NOT NULL,
		reference_price REAL NOT NULL,
		reference_bar INTEGER NOT NULL,
		reference_time TIMESTAMP NULL,
		gap_top REAL NOT NULL,
		gap_bottom REAL NOT NULL,
		higher_timeframe INTEGER NOT NULL,
		UNIQUE (run_id, signal_id)
	);

	CREATE TABLE IF NOT EXISTS entry_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		leg INTEGER NOT NULL,
		label TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target REAL NOT NULL,
		signal_type TEXT NOT NULL,
		signal_ids TEXT NOT NULL,
		combined INTEGER NOT NULL,
		bar INTEGER NOT NULL,
		time TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS draw_commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		action TEXT NOT NULL,
		kind TEXT NULL,
		tag TEXT NOT NULL,
		bar INTEGER NOT NULL,
		start_time TIMESTAMP NULL,
		end_time TIMESTAMP NULL,
		start_price REAL NOT NULL,
		end_price REAL NOT NULL,
		color TEXT NULL,
		style TEXT NULL,
		width INTEGER NOT NULL,
		opacity INTEGER NOT NULL,
		text TEXT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		label TEXT NOT NULL,
		leg INTEGER NOT NULL,
		signal_type TEXT NOT NULL,
		combined INTEGER NOT NULL,
		direction TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target REAL NOT NULL,
		price_move REAL NOT NULL,
		r_multiple REAL NOT NULL,
		entry_bar INTEGER NOT NULL,
		exit_bar INTEGER NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		close_reason TEXT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_signals_run_bar ON signals (run_id, bar);
	CREATE INDEX IF NOT EXISTS idx_entry_orders_run_bar ON entry_orders (run_id, bar, leg);
	CREATE INDEX IF NOT EXISTS idx_draw_commands_run ON draw_commands (run_id, bar);
	CREATE INDEX IF NOT EXISTS idx_trades_run_exit_time ON trades (run_id, exit_time);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_entry_time ON trades (symbol, entry_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// wrapExecError maps constraint violations onto ports.ErrDuplicateEntry.
func wrapExecError(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w: %v", msg, ports.ErrDuplicateEntry, err)
	}
	return fmt.Errorf("%s: %w: %v", msg, ports.ErrQueryFailed, err)
}

// --- SignalJournal Implementation ---

// StartRun registers a new run.
func (r *Repository) StartRun(ctx context.Context, run *ports.Run) error {
	const query = `INSERT INTO runs (id, mode, symbol, interval, started_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.Mode, run.Symbol, run.Interval, run.StartedAt); err != nil {
		return wrapExecError(err, "failed to insert run %s", run.ID)
	}
	r.logger.Debug(ctx, "Run registered", map[string]interface{}{"runID": run.ID, "mode": run.Mode})
	return nil
}

// FindRun retrieves a run by ID.
func (r *Repository) FindRun(ctx context.Context, id string) (*ports.Run, error) {
	const query = `SELECT id, mode, symbol, interval, started_at FROM runs WHERE id = ?`
	run := &ports.Run{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&run.ID, &run.Mode, &run.Symbol, &run.Interval, &run.StartedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	return run, nil
}

// RecordSignal stores an emitted signal.
func (r *Repository) RecordSignal(ctx context.Context, runID string, sig *domain.Signal) error {
	const query = `
	INSERT INTO signals (run_id, signal_id, type, direction, order_position, bar, time,
	                     entry_price, stop_loss, use_stop_loss_rr, stop_loss_plus_ticks, max_bars_between,
	                     combined, standalone, display_only, trade_generated,
	                     reference_price, reference_bar, reference_time, gap_top, gap_bottom, higher_timeframe)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		runID, sig.ID, sig.Type, sig.Direction, sig.OrderPosition, sig.Bar, sig.Time,
		sig.EntryPrice, sig.StopLoss, sig.UseStopLossRR, sig.StopLossPlusTicks, sig.MaxBarsBetween,
		sig.Combined, sig.Standalone, sig.DisplayOnly, sig.TradeGenerated,
		sig.ReferencePrice, sig.ReferenceBar, nullTime(sig.ReferenceTime), sig.GapTop, sig.GapBottom, sig.HigherTimeframe)
	if err != nil {
		return wrapExecError(err, "failed to insert signal %s", sig.ID)
	}
	r.logger.Debug(ctx, "Signal recorded", map[string]interface{}{"runID": runID, "signalID": sig.ID, "type": sig.Type})
	return nil
}

// FindSignals retrieves the signals of a run ordered by bar.
func (r *Repository) FindSignals(ctx context.Context, runID string) ([]*domain.Signal, error) {
	const query = `
	SELECT signal_id, type, direction, order_position, bar, time,
	       entry_price, stop_loss, use_stop_loss_rr, stop_loss_plus_ticks, max_bars_between,
	       combined, standalone, display_only, trade_generated,
	       reference_price, reference_bar, reference_time, gap_top, gap_bottom, higher_timeframe
	FROM signals
	WHERE run_id = ? ORDER BY bar, id`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for run %s: %w", runID, err)
	}
	defer rows.Close()

	signals := make([]*domain.Signal, 0)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal during FindSignals: %w", err)
		}
		signals = append(signals, sig)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}

// RecordEntry stores an entry leg and returns its assigned ID.
func (r *Repository) RecordEntry(ctx context.Context, o *domain.EntryOrder) (int64, error) {
	const query = `
	INSERT INTO entry_orders (run_id, leg, label, symbol, direction, quantity, entry_price,
	                          stop_loss, target, signal_type, signal_ids, combined, bar, time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		o.RunID, o.Leg, o.Label, o.Symbol, o.Direction, o.Quantity, o.EntryPrice,
		o.StopLoss, o.Target, o.SignalType, strings.Join(o.SignalIDs, ","), o.Combined, o.Bar, o.Time)
	if err != nil {
		return 0, wrapExecError(err, "failed to insert entry %s", o.Label)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for entry %s: %w", o.Label, err)
	}
	r.logger.Debug(ctx, "Entry recorded", map[string]interface{}{"entryID": id, "label": o.Label, "bar": o.Bar})
	return id, nil
}

// FindEntries retrieves the entry legs of a run ordered by bar and leg.
func (r *Repository) FindEntries(ctx context.Context, runID string) ([]*domain.EntryOrder, error) {
	const query = `
	SELECT run_id, leg, label, symbol, direction, quantity, entry_price,
	       stop_loss, target, signal_type, signal_ids, combined, bar, time
	FROM entry_orders
	WHERE run_id = ? ORDER BY bar, leg`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries for run %s: %w", runID, err)
	}
	defer rows.Close()

	entries := make([]*domain.EntryOrder, 0)
	for rows.Next() {
		o, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry during FindEntries: %w", err)
		}
		entries = append(entries, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}
	return entries, nil
}

// RecordDraw stores a draw command.
func (r *Repository) RecordDraw(ctx context.Context, runID string, cmd domain.DrawCommand) error {
	const query = `
	INSERT INTO draw_commands (run_id, action, kind, tag, bar, start_time, end_time,
	                           start_price, end_price, color, style, width, opacity, text)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		runID, cmd.Action, cmd.Kind, cmd.Tag, cmd.Bar, nullTime(cmd.StartTime), nullTime(cmd.EndTime),
		cmd.StartPrice, cmd.EndPrice, cmd.Color, cmd.Style, cmd.Width, cmd.Opacity, cmd.Text)
	if err != nil {
		return wrapExecError(err, "failed to insert draw command %s", cmd.Tag)
	}
	return nil
}

// FindDraws retrieves the draw commands of a run in insertion order.
func (r *Repository) FindDraws(ctx context.Context, runID string) ([]domain.DrawCommand, error) {
	const query = `
	SELECT action, COALESCE(kind, ''), tag, bar, start_time, end_time,
	       start_price, end_price, COALESCE(color, ''), COALESCE(style, ''), width, opacity, COALESCE(text, '')
	FROM draw_commands
	WHERE run_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query draw commands for run %s: %w", runID, err)
	}
	defer rows.Close()

	draws := make([]domain.DrawCommand, 0)
	for rows.Next() {
		var cmd domain.DrawCommand
		var action, kind string
		var start, end sql.NullTime
		if err := rows.Scan(&action, &kind, &cmd.Tag, &cmd.Bar, &start, &end,
			&cmd.StartPrice, &cmd.EndPrice, &cmd.Color, &cmd.Style, &cmd.Width, &cmd.Opacity, &cmd.Text); err != nil {
			return nil, fmt.Errorf("failed to scan draw command during FindDraws: %w", err)
		}
		cmd.Action = domain.DrawAction(action)
		cmd.Kind = domain.DrawKind(kind)
		cmd.StartTime = start.Time
		cmd.EndTime = end.Time
		draws = append(draws, cmd)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draw command rows: %w", err)
	}
	return draws, nil
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (run_id, symbol, label, leg, signal_type, combined, direction, quantity,
	                    entry_price, exit_price, stop_loss, target, price_move, r_multiple,
	                    entry_bar, exit_bar, entry_time, exit_time, close_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.RunID, trade.Symbol, trade.Label, trade.Leg, trade.SignalType, trade.Combined, trade.Direction, trade.Quantity,
		trade.EntryPrice, trade.ExitPrice, trade.StopLoss, trade.Target, trade.PriceMove, trade.RMultiple,
		trade.EntryBar, trade.ExitBar, trade.EntryTime, trade.ExitTime, trade.CloseReason)
	if err != nil {
		return 0, wrapExecError(err, "failed to insert trade for symbol %s", trade.Symbol)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id // Update domain object
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "label": trade.Label, "rMultiple": trade.RMultiple})
	return id, nil
}

const tradeColumns = `id, run_id, symbol, label, leg, signal_type, combined, direction, quantity,
	       entry_price, exit_price, stop_loss, target, price_move, r_multiple,
	       entry_bar, exit_bar, entry_time, exit_time, close_reason`

// FindByRun retrieves the trades of a run ordered by exit time.
func (r *Repository) FindByRun(ctx context.Context, runID string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE run_id = ? ORDER BY exit_time, id`
	return r.queryTrades(ctx, query, runID)
}

// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE symbol = ? ORDER BY entry_time DESC LIMIT ?`
	return r.queryTrades(ctx, query, symbol, limit)
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// scanSignal scans a row into a domain.Signal struct.
func scanSignal(s scanner) (*domain.Signal, error) {
	sig := &domain.Signal{}
	var typ, dir string
	var refTime sql.NullTime
	err := s.Scan(
		&sig.ID, &typ, &dir, &sig.OrderPosition, &sig.Bar, &sig.Time,
		&sig.EntryPrice, &sig.StopLoss, &sig.UseStopLossRR, &sig.StopLossPlusTicks, &sig.MaxBarsBetween,
		&sig.Combined, &sig.Standalone, &sig.DisplayOnly, &sig.TradeGenerated,
		&sig.ReferencePrice, &sig.ReferenceBar, &refTime, &sig.GapTop, &sig.GapBottom, &sig.HigherTimeframe)
	if err != nil {
		return nil, err
	}
	sig.Type = domain.SignalType(typ)
	sig.Direction = domain.Direction(dir)
	sig.ReferenceTime = refTime.Time
	return sig, nil
}

// scanEntry scans a row into a domain.EntryOrder struct.
func scanEntry(s scanner) (*domain.EntryOrder, error) {
	o := &domain.EntryOrder{}
	var dir, typ, ids string
	err := s.Scan(
		&o.RunID, &o.Leg, &o.Label, &o.Symbol, &dir, &o.Quantity, &o.EntryPrice,
		&o.StopLoss, &o.Target, &typ, &ids, &o.Combined, &o.Bar, &o.Time)
	if err != nil {
		return nil, err
	}
	o.Direction = domain.Direction(dir)
	o.SignalType = domain.SignalType(typ)
	if ids != "" {
		o.SignalIDs = strings.Split(ids, ",")
	}
	return o, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	th := &domain.Trade{}
	var typ, dir string
	var closeReason sql.NullString
	err := s.Scan(
		&th.ID, &th.RunID, &th.Symbol, &th.Label, &th.Leg, &typ, &th.Combined, &dir, &th.Quantity,
		&th.EntryPrice, &th.ExitPrice, &th.StopLoss, &th.Target, &th.PriceMove, &th.RMultiple,
		&th.EntryBar, &th.ExitBar, &th.EntryTime, &th.ExitTime, &closeReason)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	th.SignalType = domain.SignalType(typ)
	th.Direction = domain.Direction(dir)
	if closeReason.Valid {
		th.CloseReason = domain.CloseReason(closeReason.String)
	} else {
		th.CloseReason = domain.CloseReasonUnknown // Default if NULL
	}
	return th, nil
}
