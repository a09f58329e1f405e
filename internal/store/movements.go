package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pantry-service/internal/apperror"
	"pantry-service/internal/ledger"
	"pantry-service/internal/models"
)

const movementColumns = `movement_id, product_id, qty, from_location, to_location,
	price, order_id, note, moved_at`

type movementRow struct {
	MovementID   int64          `db:"movement_id"`
	ProductID    string         `db:"product_id"`
	Qty          int64          `db:"qty"`
	FromLocation sql.NullString `db:"from_location"`
	ToLocation   sql.NullString `db:"to_location"`
	Price        models.Money   `db:"price"`
	OrderID      sql.NullInt64  `db:"order_id"`
	Note         string         `db:"note"`
	MovedAt      time.Time      `db:"moved_at"`
}

func (r movementRow) toModel() models.Movement {
	m := models.Movement{
		MovementID: r.MovementID,
		ProductID:  r.ProductID,
		Qty:        r.Qty,
		From:       endpointFromNull(r.FromLocation),
		To:         endpointFromNull(r.ToLocation),
		Price:      r.Price,
		Note:       r.Note,
		MovedAt:    r.MovedAt,
	}
	if r.OrderID.Valid {
		id := r.OrderID.Int64
		m.OrderID = &id
	}
	return m
}

func endpointFromNull(v sql.NullString) models.Endpoint {
	if !v.Valid {
		return models.External()
	}
	return models.At(v.String)
}

// endpointValue is the column value for e: NULL for External
func endpointValue(e models.Endpoint) any {
	if e.IsExternal() {
		return nil
	}
	return e.Location()
}

// MovementFilter narrows ListMovements; zero fields match everything
type MovementFilter struct {
	ProductID  string
	Location   string
	ToLocation string
	OrderID    *int64
	Limit      int
}

// InsertMovement appends m to the ledger and applies it to the balance
// projection in the same transaction.
func (s *Store) InsertMovement(ctx context.Context, m models.Movement) error {
	if m.MovedAt.IsZero() {
		m.MovedAt = now()
	}

	return s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO movements (`+movementColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.MovementID, m.ProductID, m.Qty, endpointValue(m.From), endpointValue(m.To),
			m.Price, m.OrderID, m.Note, m.MovedAt)
		if isForeignKeyViolation(err) {
			return apperror.InvalidMovement("movement references an unknown product or location").
				With("product_id", m.ProductID).
				With("from_location", m.From.String()).
				With("to_location", m.To.String())
		}
		if isUniqueViolation(err) {
			return apperror.Conflict("movement id already used").With("movement_id", m.MovementID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert movement: %w", err)
		}
		return tx.applyDeltas(ctx, m.ProductID, ledger.Deltas(m))
	})
}

func (s *Store) applyDeltas(ctx context.Context, productID string, deltas []ledger.Delta) error {
	for _, d := range deltas {
		_, err := s.exec(ctx, `
			INSERT INTO stock_balances (product_id, location_id, qty) VALUES (?, ?, ?)
			ON CONFLICT (product_id, location_id) DO UPDATE SET qty = stock_balances.qty + excluded.qty`,
			productID, d.Location, d.Qty)
		if err != nil {
			return fmt.Errorf("failed to update stock balance: %w", err)
		}
	}
	return nil
}

// GetMovement retrieves one ledger entry
func (s *Store) GetMovement(ctx context.Context, id int64) (*models.Movement, error) {
	var row movementRow
	err := s.get(ctx, &row, "SELECT "+movementColumns+" FROM movements WHERE movement_id = ?", id)
	if isNoRows(err) {
		return nil, apperror.NotFound("movement", fmt.Sprint(id))
	}
	if err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

// GetMovementsByProduct returns a product's movements in ledger order
func (s *Store) GetMovementsByProduct(ctx context.Context, productID string) ([]models.Movement, error) {
	return s.ListMovements(ctx, MovementFilter{ProductID: productID})
}

// ListMovements returns movements in ledger order. With a limit the most
// recent entries are kept, still in ascending order.
func (s *Store) ListMovements(ctx context.Context, filter MovementFilter) ([]models.Movement, error) {
	query := "SELECT " + movementColumns + " FROM movements WHERE 1 = 1"
	var args []any
	if filter.ProductID != "" {
		query += " AND product_id = ?"
		args = append(args, filter.ProductID)
	}
	if filter.Location != "" {
		query += " AND (from_location = ? OR to_location = ?)"
		args = append(args, filter.Location, filter.Location)
	}
	if filter.ToLocation != "" {
		query += " AND to_location = ?"
		args = append(args, filter.ToLocation)
	}
	if filter.OrderID != nil {
		query += " AND order_id = ?"
		args = append(args, *filter.OrderID)
	}
	if filter.Limit > 0 {
		query = "SELECT * FROM (" + query + " ORDER BY movement_id DESC LIMIT ?) recent"
		args = append(args, filter.Limit)
	}
	query += " ORDER BY movement_id"

	var rows []movementRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	movements := make([]models.Movement, len(rows))
	for i, r := range rows {
		movements[i] = r.toModel()
	}
	return movements, nil
}

// matchMovement pins a write to the row state the caller read
const matchMovement = `movement_id = ? AND product_id = ? AND qty = ?
	AND COALESCE(from_location, '') = ? AND COALESCE(to_location, '') = ?`

func matchArgs(m models.Movement) []any {
	return []any{m.MovementID, m.ProductID, m.Qty, m.From.Location(), m.To.Location()}
}

// staleMovement explains a write that matched no row: either the movement is
// gone or it changed since it was read.
func (s *Store) staleMovement(ctx context.Context, id int64) error {
	if _, err := s.GetMovement(ctx, id); err != nil {
		return err
	}
	return apperror.Conflict("movement changed concurrently").With("movement_id", id)
}

// ReplaceMovement overwrites a movement with after, moving the balance
// projection from before's effect to after's. It fails with CONFLICT when the
// stored row no longer equals before.
func (s *Store) ReplaceMovement(ctx context.Context, before, after models.Movement) error {
	return s.WithTx(ctx, func(tx *Store) error {
		args := append([]any{after.ProductID, after.Qty, endpointValue(after.From), endpointValue(after.To)},
			matchArgs(before)...)
		n, err := tx.exec(ctx, `
			UPDATE movements SET product_id = ?, qty = ?, from_location = ?, to_location = ?
			WHERE `+matchMovement, args...)
		if isForeignKeyViolation(err) {
			return apperror.InvalidMovement("movement references an unknown product or location").
				With("movement_id", before.MovementID)
		}
		if err != nil {
			return fmt.Errorf("failed to update movement: %w", err)
		}
		if n == 0 {
			return tx.staleMovement(ctx, before.MovementID)
		}

		if err := tx.applyDeltas(ctx, before.ProductID, ledger.Invert(ledger.Deltas(before))); err != nil {
			return err
		}
		return tx.applyDeltas(ctx, after.ProductID, ledger.Deltas(after))
	})
}

// RemoveMovement deletes a movement and backs its effect out of the projection
func (s *Store) RemoveMovement(ctx context.Context, m models.Movement) error {
	return s.WithTx(ctx, func(tx *Store) error {
		n, err := tx.exec(ctx, "DELETE FROM movements WHERE "+matchMovement, matchArgs(m)...)
		if err != nil {
			return fmt.Errorf("failed to delete movement: %w", err)
		}
		if n == 0 {
			return tx.staleMovement(ctx, m.MovementID)
		}
		return tx.applyDeltas(ctx, m.ProductID, ledger.Invert(ledger.Deltas(m)))
	})
}

type correctionRow struct {
	CorrectionID    int64          `db:"correction_id"`
	MovementID      int64          `db:"movement_id"`
	Action          string         `db:"action"`
	OldProductID    string         `db:"old_product_id"`
	OldQty          int64          `db:"old_qty"`
	OldFromLocation sql.NullString `db:"old_from_location"`
	OldToLocation   sql.NullString `db:"old_to_location"`
	NewProductID    sql.NullString `db:"new_product_id"`
	NewQty          sql.NullInt64  `db:"new_qty"`
	NewFromLocation sql.NullString `db:"new_from_location"`
	NewToLocation   sql.NullString `db:"new_to_location"`
	Reason          string         `db:"reason"`
	Actor           string         `db:"actor"`
	CorrectedAt     time.Time      `db:"corrected_at"`
}

// InsertCorrection records the audit entry for a staff correction
func (s *Store) InsertCorrection(ctx context.Context, c models.MovementCorrection) error {
	if c.CorrectedAt.IsZero() {
		c.CorrectedAt = now()
	}

	var newProduct, newFrom, newTo any
	var newQty any
	if c.After != nil {
		newProduct = c.After.ProductID
		newQty = c.After.Qty
		newFrom = endpointValue(c.After.From)
		newTo = endpointValue(c.After.To)
	}

	_, err := s.exec(ctx, `
		INSERT INTO movement_corrections (correction_id, movement_id, action,
			old_product_id, old_qty, old_from_location, old_to_location,
			new_product_id, new_qty, new_from_location, new_to_location,
			reason, actor, corrected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CorrectionID, c.MovementID, c.Action,
		c.Before.ProductID, c.Before.Qty, endpointValue(c.Before.From), endpointValue(c.Before.To),
		newProduct, newQty, newFrom, newTo,
		c.Reason, c.Actor, c.CorrectedAt)
	if err != nil {
		return fmt.Errorf("failed to insert movement correction: %w", err)
	}
	return nil
}

// GetCorrections lists the audit trail of one movement, oldest first
func (s *Store) GetCorrections(ctx context.Context, movementID int64) ([]models.MovementCorrection, error) {
	var rows []correctionRow
	err := s.selectAll(ctx, &rows, `
		SELECT correction_id, movement_id, action, old_product_id, old_qty,
			old_from_location, old_to_location, new_product_id, new_qty,
			new_from_location, new_to_location, reason, actor, corrected_at
		FROM movement_corrections WHERE movement_id = ? ORDER BY correction_id`, movementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list movement corrections: %w", err)
	}

	corrections := make([]models.MovementCorrection, len(rows))
	for i, r := range rows {
		c := models.MovementCorrection{
			CorrectionID: r.CorrectionID,
			MovementID:   r.MovementID,
			Action:       r.Action,
			Before: models.Movement{
				MovementID: r.MovementID,
				ProductID:  r.OldProductID,
				Qty:        r.OldQty,
				From:       endpointFromNull(r.OldFromLocation),
				To:         endpointFromNull(r.OldToLocation),
			},
			Reason:      r.Reason,
			Actor:       r.Actor,
			CorrectedAt: r.CorrectedAt,
		}
		if r.NewProductID.Valid {
			c.After = &models.Movement{
				MovementID: r.MovementID,
				ProductID:  r.NewProductID.String,
				Qty:        r.NewQty.Int64,
				From:       endpointFromNull(r.NewFromLocation),
				To:         endpointFromNull(r.NewToLocation),
			}
		}
		corrections[i] = c
	}
	return corrections, nil
}

type balanceRow struct {
	ProductID  string `db:"product_id"`
	LocationID string `db:"location_id"`
	Qty        int64  `db:"qty"`
}

// GetBalances returns the projected quantity per location for a product
func (s *Store) GetBalances(ctx context.Context, productID string) (map[string]int64, error) {
	var rows []balanceRow
	err := s.selectAll(ctx, &rows,
		"SELECT product_id, location_id, qty FROM stock_balances WHERE product_id = ?", productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock balances: %w", err)
	}
	balances := make(map[string]int64, len(rows))
	for _, r := range rows {
		if r.Qty != 0 {
			balances[r.LocationID] = r.Qty
		}
	}
	return balances, nil
}

// GetAllBalances returns the whole projection as product -> location -> qty
func (s *Store) GetAllBalances(ctx context.Context) (map[string]map[string]int64, error) {
	var rows []balanceRow
	if err := s.selectAll(ctx, &rows, "SELECT product_id, location_id, qty FROM stock_balances"); err != nil {
		return nil, fmt.Errorf("failed to load stock balances: %w", err)
	}
	result := make(map[string]map[string]int64)
	for _, r := range rows {
		if r.Qty == 0 {
			continue
		}
		if result[r.ProductID] == nil {
			result[r.ProductID] = make(map[string]int64)
		}
		result[r.ProductID][r.LocationID] = r.Qty
	}
	return result, nil
}

// ShelfOnHand sums the projected balances of every shelf location
func (s *Store) ShelfOnHand(ctx context.Context, productID string) (int64, error) {
	balances, err := s.GetBalances(ctx, productID)
	if err != nil {
		return 0, err
	}
	return ledger.OnHandFromBalances(balances), nil
}

// RebuildBalances discards the projection and re-derives it from the ledger
func (s *Store) RebuildBalances(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *Store) error {
		movements, err := tx.ListMovements(ctx, MovementFilter{})
		if err != nil {
			return err
		}
		if _, err := tx.exec(ctx, "DELETE FROM stock_balances"); err != nil {
			return fmt.Errorf("failed to clear stock balances: %w", err)
		}

		byProduct := make(map[string][]models.Movement)
		for _, m := range movements {
			byProduct[m.ProductID] = append(byProduct[m.ProductID], m)
		}
		for productID, productMovements := range byProduct {
			for location, qty := range ledger.Balances(productMovements) {
				if err := tx.applyDeltas(ctx, productID, []ledger.Delta{{Location: location, Qty: qty}}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
