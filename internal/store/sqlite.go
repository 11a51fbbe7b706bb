package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"buffet/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ MetadataStore = (*SQLiteStore)(nil)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore implements the metadata store interfaces backed by a SQLite
// database. Timestamps are stored as Unix nanoseconds (UTC).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dbPath, err)
	}
	// A single connection serialises writers and keeps :memory: databases
	// shared across callers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// StrategyStore implementation
// ---------------------------------------------------------------------------

const strategyColumns = `id, name, strategy_type, parameters, created_at, updated_at`

func scanStrategy(rs rowScanner) (*domain.Strategy, error) {
	var (
		st               domain.Strategy
		typ, params      string
		created, updated int64
	)
	if err := rs.Scan(&st.ID, &st.Name, &typ, &params, &created, &updated); err != nil {
		return nil, err
	}
	st.Type = domain.StrategyType(typ)
	st.Parameters = []byte(params)
	st.CreatedAt = fromNanos(created)
	st.UpdatedAt = fromNanos(updated)
	return &st, nil
}

// CreateStrategy inserts a new strategy.
func (s *SQLiteStore) CreateStrategy(ctx context.Context, st *domain.Strategy) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if len(st.Parameters) == 0 {
		st.Parameters = []byte("{}")
	}
	if !json.Valid(st.Parameters) {
		return fmt.Errorf("%w: strategy parameters are not valid JSON", domain.ErrInvalidInput)
	}
	now := s.now()
	st.CreatedAt, st.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategies (`+strategyColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, string(st.Type), string(st.Parameters), toNanos(now), toNanos(now))
	return domain.NewStoreError("inserting strategy", err)
}

// GetStrategy retrieves a strategy by ID.
func (s *SQLiteStore) GetStrategy(ctx context.Context, id string) (*domain.Strategy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE id = ?`, id)
	st, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("strategy", id)
	}
	if err != nil {
		return nil, domain.NewStoreError("selecting strategy", err)
	}
	return st, nil
}

// ListStrategies returns all strategies, newest first.
func (s *SQLiteStore) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strategyColumns+` FROM strategies ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, domain.NewStoreError("listing strategies", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, domain.NewStoreError("scanning strategy", err)
		}
		out = append(out, *st)
	}
	return out, domain.NewStoreError("listing strategies", rows.Err())
}

// UpdateStrategy updates the name and/or parameters of a strategy.
func (s *SQLiteStore) UpdateStrategy(ctx context.Context, id string, upd StrategyUpdate) (*domain.Strategy, error) {
	if upd.Parameters != nil && !json.Valid(upd.Parameters) {
		return nil, fmt.Errorf("%w: strategy parameters are not valid JSON", domain.ErrInvalidInput)
	}

	sets := []string{"updated_at = ?"}
	args := []any{toNanos(s.now())}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Parameters != nil {
		sets = append(sets, "parameters = ?")
		args = append(args, string(upd.Parameters))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, domain.NewStoreError("updating strategy", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("strategy", id)
	}
	return s.GetStrategy(ctx, id)
}

// DeleteStrategy removes a strategy.
func (s *SQLiteStore) DeleteStrategy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err != nil {
		return domain.NewStoreError("deleting strategy", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("strategy", id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

const signalColumns = `id, strategy_id, symbol, signal_type, timestamp, metadata, created_at`

func scanSignal(rs rowScanner) (*domain.Signal, error) {
	var (
		sig         domain.Signal
		typ         string
		ts, created int64
		meta        sql.NullString
	)
	if err := rs.Scan(&sig.ID, &sig.StrategyID, &sig.Symbol, &typ, &ts, &meta, &created); err != nil {
		return nil, err
	}
	sig.Type = domain.SignalType(typ)
	sig.Timestamp = fromNanos(ts)
	sig.CreatedAt = fromNanos(created)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &sig.Metadata); err != nil {
			return nil, fmt.Errorf("decoding signal metadata: %w", err)
		}
	}
	return &sig, nil
}

// SaveSignal inserts a new signal into the database.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig *domain.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	sig.CreatedAt = s.now()

	var meta sql.NullString
	if len(sig.Metadata) > 0 {
		b, err := json.Marshal(sig.Metadata)
		if err != nil {
			return fmt.Errorf("encoding signal metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (`+signalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.StrategyID, sig.Symbol, string(sig.Type), toNanos(sig.Timestamp), meta, toNanos(sig.CreatedAt))
	return domain.NewStoreError("inserting signal", err)
}

// GetSignal retrieves a signal by ID.
func (s *SQLiteStore) GetSignal(ctx context.Context, id string) (*domain.Signal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("signal", id)
	}
	if err != nil {
		return nil, domain.NewStoreError("selecting signal", err)
	}
	return sig, nil
}

// ListSignals returns the most recent signals for a strategy, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `SELECT ` + signalColumns + ` FROM signals`
	var args []any
	if strategyID != "" {
		query += ` WHERE strategy_id = ?`
		args = append(args, strategyID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError("listing signals", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, domain.NewStoreError("scanning signal", err)
		}
		out = append(out, *sig)
	}
	return out, domain.NewStoreError("listing signals", rows.Err())
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

const orderColumns = `id, signal_id, symbol, side, quantity, price, status, created_at, updated_at`

func scanOrder(rs rowScanner) (*domain.Order, error) {
	var (
		o                domain.Order
		signalID         sql.NullString
		side, status     string
		price            sql.NullFloat64
		created, updated int64
	)
	if err := rs.Scan(&o.ID, &signalID, &o.Symbol, &side, &o.Quantity, &price, &status, &created, &updated); err != nil {
		return nil, err
	}
	o.SignalID = signalID.String
	o.Side = domain.OrderSide(side)
	o.LimitPrice = floatPtr(price)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = fromNanos(created)
	o.UpdatedAt = fromNanos(updated)
	return &o, nil
}

// SaveOrder inserts a new order into the database.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = domain.OrderStatusOpen
	}
	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, nullString(o.SignalID), o.Symbol, string(o.Side), o.Quantity, nullFloat(o.LimitPrice),
		string(o.Status), toNanos(now), toNanos(now))
	return domain.NewStoreError("inserting order", err)
}

// GetOrder retrieves a single order by its ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, domain.NewStoreError("selecting order", err)
	}
	return o, nil
}

// ListOrders returns orders matching the given status, newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError("listing orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.NewStoreError("scanning order", err)
		}
		out = append(out, *o)
	}
	return out, domain.NewStoreError("listing orders", rows.Err())
}

// UpdateOrderStatus moves an Open order into a terminal status.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	if !domain.OrderStatusOpen.CanTransition(status) {
		return nil, fmt.Errorf("order %q -> %s: %w", id, status, domain.ErrInvalidTransition)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), toNanos(s.now()), id, string(domain.OrderStatusOpen))
	if err != nil {
		return nil, domain.NewStoreError("updating order status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := s.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("order %q is %s: %w", id, existing.Status, domain.ErrInvalidTransition)
	}
	return s.GetOrder(ctx, id)
}

// ---------------------------------------------------------------------------
// PositionStore implementation
// ---------------------------------------------------------------------------

const positionColumns = `id, symbol, side, quantity, avg_entry_price, unrealized_pnl, realized_pnl, status, opened_at, closed_at, updated_at`

func scanPosition(rs rowScanner) (*domain.Position, error) {
	var (
		p               domain.Position
		side, status    string
		opened, updated int64
		closed          sql.NullInt64
	)
	if err := rs.Scan(&p.ID, &p.Symbol, &side, &p.Quantity, &p.AvgEntryPrice, &p.UnrealizedPnL,
		&p.RealizedPnL, &status, &opened, &closed, &updated); err != nil {
		return nil, err
	}
	p.Side = domain.OrderSide(side)
	p.Status = domain.PositionStatus(status)
	p.OpenedAt = fromNanos(opened)
	p.ClosedAt = timePtr(closed)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}

// SavePosition inserts a new Open position.
func (s *SQLiteStore) SavePosition(ctx context.Context, p *domain.Position) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.Status = domain.PositionStatusOpen
	p.OpenedAt, p.UpdatedAt = now, now
	p.ClosedAt = nil

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (`+positionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		p.ID, p.Symbol, string(p.Side), p.Quantity, p.AvgEntryPrice, p.UnrealizedPnL, p.RealizedPnL,
		string(p.Status), toNanos(now), toNanos(now))
	return domain.NewStoreError("inserting position", err)
}

// GetPosition retrieves a position by ID.
func (s *SQLiteStore) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("position", id)
	}
	if err != nil {
		return nil, domain.NewStoreError("selecting position", err)
	}
	return p, nil
}

// FindOpenPosition returns the Open position for a (symbol, side) pair.
func (s *SQLiteStore) FindOpenPosition(ctx context.Context, symbol string, side domain.OrderSide) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE symbol = ? AND side = ? AND status = ?`,
		symbol, string(side), string(domain.PositionStatusOpen))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("open position", symbol+"/"+string(side))
	}
	if err != nil {
		return nil, domain.NewStoreError("selecting open position", err)
	}
	return p, nil
}

// UpdatePositionFill writes merged fill results to an Open position.
func (s *SQLiteStore) UpdatePositionFill(ctx context.Context, id string, qty, avgPrice float64) (*domain.Position, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET quantity = ?, avg_entry_price = ?, updated_at = ? WHERE id = ? AND status = ?`,
		qty, avgPrice, toNanos(s.now()), id, string(domain.PositionStatusOpen))
	if err != nil {
		return nil, domain.NewStoreError("updating position", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetPosition(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("position %q is closed: %w", id, domain.ErrInvalidTransition)
	}
	return s.GetPosition(ctx, id)
}

// ClosePosition transitions an Open position to Closed.
func (s *SQLiteStore) ClosePosition(ctx context.Context, id string, realizedPnL float64) (*domain.Position, error) {
	now := toNanos(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET status = ?, realized_pnl = ?, closed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.PositionStatusClosed), realizedPnL, now, now, id, string(domain.PositionStatusOpen))
	if err != nil {
		return nil, domain.NewStoreError("closing position", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetPosition(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("position %q is already closed: %w", id, domain.ErrInvalidTransition)
	}
	return s.GetPosition(ctx, id)
}

// ListPositions returns positions newest first.
func (s *SQLiteStore) ListPositions(ctx context.Context, openOnly bool) ([]domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions`
	var args []any
	if openOnly {
		query += ` WHERE status = ?`
		args = append(args, string(domain.PositionStatusOpen))
	}
	query += ` ORDER BY opened_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError("listing positions", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, domain.NewStoreError("scanning position", err)
		}
		out = append(out, *p)
	}
	return out, domain.NewStoreError("listing positions", rows.Err())
}

// ---------------------------------------------------------------------------
// BacktestStore implementation
// ---------------------------------------------------------------------------

const backtestColumns = `id, strategy_id, symbol, start_time, end_time, initial_balance, final_balance, total_return, sharpe_ratio, max_drawdown, total_trades, win_rate, status, error_message, created_at`

func scanBacktest(rs rowScanner) (*domain.Backtest, error) {
	var (
		b                            domain.Backtest
		start, end, created          int64
		final, ret, sharpe, mdd, win sql.NullFloat64
		trades                       sql.NullInt64
		status                       string
		errMsg                       sql.NullString
	)
	if err := rs.Scan(&b.ID, &b.StrategyID, &b.Symbol, &start, &end, &b.InitialBalance,
		&final, &ret, &sharpe, &mdd, &trades, &win, &status, &errMsg, &created); err != nil {
		return nil, err
	}
	b.StartTime = fromNanos(start)
	b.EndTime = fromNanos(end)
	b.FinalBalance = floatPtr(final)
	b.TotalReturn = floatPtr(ret)
	b.SharpeRatio = floatPtr(sharpe)
	b.MaxDrawdown = floatPtr(mdd)
	b.WinRate = floatPtr(win)
	if trades.Valid {
		n := int(trades.Int64)
		b.TotalTrades = &n
	}
	b.Status = domain.BacktestStatus(status)
	b.ErrorMessage = errMsg.String
	b.CreatedAt = fromNanos(created)
	return &b, nil
}

// CreateBacktest inserts a new Pending backtest.
func (s *SQLiteStore) CreateBacktest(ctx context.Context, b *domain.Backtest) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = domain.BacktestStatusPending
	b.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backtests (id, strategy_id, symbol, start_time, end_time, initial_balance, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.StrategyID, b.Symbol, toNanos(b.StartTime), toNanos(b.EndTime), b.InitialBalance,
		string(b.Status), toNanos(b.CreatedAt))
	return domain.NewStoreError("inserting backtest", err)
}

// GetBacktest retrieves a backtest by ID.
func (s *SQLiteStore) GetBacktest(ctx context.Context, id string) (*domain.Backtest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backtestColumns+` FROM backtests WHERE id = ?`, id)
	b, err := scanBacktest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("backtest", id)
	}
	if err != nil {
		return nil, domain.NewStoreError("selecting backtest", err)
	}
	return b, nil
}

// ListBacktests returns all backtests, newest first.
func (s *SQLiteStore) ListBacktests(ctx context.Context) ([]domain.Backtest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backtestColumns+` FROM backtests ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, domain.NewStoreError("listing backtests", err)
	}
	defer rows.Close()

	var out []domain.Backtest
	for rows.Next() {
		b, err := scanBacktest(rows)
		if err != nil {
			return nil, domain.NewStoreError("scanning backtest", err)
		}
		out = append(out, *b)
	}
	return out, domain.NewStoreError("listing backtests", rows.Err())
}

// backtestPredecessors returns the statuses from which a backtest may move
// to next, as SQL placeholders and arguments.
func backtestPredecessors(next domain.BacktestStatus) (string, []any) {
	all := []domain.BacktestStatus{
		domain.BacktestStatusPending,
		domain.BacktestStatusRunning,
		domain.BacktestStatusCompleted,
		domain.BacktestStatusFailed,
	}
	var marks []string
	var args []any
	for _, from := range all {
		if from.CanTransition(next) {
			marks = append(marks, "?")
			args = append(args, string(from))
		}
	}
	return strings.Join(marks, ", "), args
}

func (s *SQLiteStore) backtestTransitionError(ctx context.Context, id string, next domain.BacktestStatus) error {
	existing, err := s.GetBacktest(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("backtest %q %s -> %s: %w", id, existing.Status, next, domain.ErrInvalidTransition)
}

// UpdateBacktestStatus moves a backtest forward to status.
func (s *SQLiteStore) UpdateBacktestStatus(ctx context.Context, id string, status domain.BacktestStatus, errMsg string) error {
	marks, from := backtestPredecessors(status)
	if len(from) == 0 {
		return fmt.Errorf("backtest %q -> %s: %w", id, status, domain.ErrInvalidTransition)
	}

	args := append([]any{string(status), nullString(errMsg), id}, from...)
	res, err := s.db.ExecContext(ctx,
		`UPDATE backtests SET status = ?, error_message = ? WHERE id = ? AND status IN (`+marks+`)`, args...)
	if err != nil {
		return domain.NewStoreError("updating backtest status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.backtestTransitionError(ctx, id, status)
	}
	return nil
}

// CompleteBacktest persists result metrics and marks the backtest Completed.
func (s *SQLiteStore) CompleteBacktest(ctx context.Context, id string, r domain.BacktestResult) error {
	marks, from := backtestPredecessors(domain.BacktestStatusCompleted)

	args := append([]any{r.FinalBalance, r.TotalReturn, r.SharpeRatio, r.MaxDrawdown, r.TotalTrades, r.WinRate,
		string(domain.BacktestStatusCompleted), id}, from...)
	res, err := s.db.ExecContext(ctx,
		`UPDATE backtests
		 SET final_balance = ?, total_return = ?, sharpe_ratio = ?, max_drawdown = ?, total_trades = ?, win_rate = ?,
		     status = ?, error_message = NULL
		 WHERE id = ? AND status IN (`+marks+`)`, args...)
	if err != nil {
		return domain.NewStoreError("persisting backtest results", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.backtestTransitionError(ctx, id, domain.BacktestStatusCompleted)
	}
	return nil
}

const backtestTradeColumns = `id, backtest_id, symbol, side, quantity, entry_price, entry_time, exit_price, exit_time, pnl, percentage_return`

func scanBacktestTrade(rs rowScanner) (*domain.BacktestTrade, error) {
	var (
		t                   domain.BacktestTrade
		side                string
		entry               int64
		exitPrice, pnl, pct sql.NullFloat64
		exitTime            sql.NullInt64
	)
	if err := rs.Scan(&t.ID, &t.BacktestID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &entry,
		&exitPrice, &exitTime, &pnl, &pct); err != nil {
		return nil, err
	}
	t.Side = domain.OrderSide(side)
	t.EntryTime = fromNanos(entry)
	t.ExitPrice = floatPtr(exitPrice)
	t.ExitTime = timePtr(exitTime)
	t.PnL = floatPtr(pnl)
	t.PercentageReturn = floatPtr(pct)
	return &t, nil
}

// CreateBacktestTrade inserts an open simulated trade.
func (s *SQLiteStore) CreateBacktestTrade(ctx context.Context, t *domain.BacktestTrade) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backtest_trades (id, backtest_id, symbol, side, quantity, entry_price, entry_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BacktestID, t.Symbol, string(t.Side), t.Quantity, t.EntryPrice, toNanos(t.EntryTime))
	return domain.NewStoreError("inserting backtest trade", err)
}

// CloseBacktestTrade populates the exit fields of a trade.
func (s *SQLiteStore) CloseBacktestTrade(ctx context.Context, id string, exitPrice float64, exitTime time.Time, pnl, pctReturn float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backtest_trades SET exit_price = ?, exit_time = ?, pnl = ?, percentage_return = ?
		 WHERE id = ? AND exit_time IS NULL`,
		exitPrice, toNanos(exitTime), pnl, pctReturn, id)
	if err != nil {
		return domain.NewStoreError("closing backtest trade", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("open backtest trade", id)
	}
	return nil
}

// ListBacktestTrades returns a backtest's trades ordered by entry time.
func (s *SQLiteStore) ListBacktestTrades(ctx context.Context, backtestID string) ([]domain.BacktestTrade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backtestTradeColumns+` FROM backtest_trades WHERE backtest_id = ? ORDER BY entry_time ASC, rowid ASC`,
		backtestID)
	if err != nil {
		return nil, domain.NewStoreError("listing backtest trades", err)
	}
	defer rows.Close()

	var out []domain.BacktestTrade
	for rows.Next() {
		t, err := scanBacktestTrade(rows)
		if err != nil {
			return nil, domain.NewStoreError("scanning backtest trade", err)
		}
		out = append(out, *t)
	}
	return out, domain.NewStoreError("listing backtest trades", rows.Err())
}
