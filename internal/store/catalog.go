package store

import (
	"context"
	"fmt"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `product_id, price, purchase_price, category, description, upc,
	servings, points, nutrition_score, image_url, created_at`

// CreateProduct inserts a product and its tags
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now()
	}

	return s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			product.ProductID, product.Price, product.PurchasePrice, string(product.Category),
			product.Description, product.UPC, product.Servings, product.Points,
			product.NutritionScore, product.ImageURL, product.CreatedAt)
		if isUniqueViolation(err) {
			return apperror.Conflict("product already exists").With("product_id", product.ProductID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert product: %w", err)
		}
		return tx.replaceProductTags(ctx, product)
	})
}

// GetProductByID retrieves a product with its tags
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.get(ctx, &product, "SELECT "+productColumns+" FROM products WHERE product_id = ?", id)
	if isNoRows(err) {
		return nil, apperror.NotFound("product", id)
	}
	if err != nil {
		return nil, err
	}

	products := []models.Product{product}
	if err := s.attachProductTags(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// ProductExists reports whether a product key is taken
func (s *Store) ProductExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.get(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM products WHERE product_id = ?)", id)
	return exists, err
}

// GetProducts retrieves all products, optionally limited to one category
func (s *Store) GetProducts(ctx context.Context, category models.Category) ([]models.Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	var args []any
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, string(category))
	}
	query += " ORDER BY product_id"

	products := []models.Product{}
	if err := s.selectAll(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	if err := s.attachProductTags(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProductsByIDs retrieves multiple products by key
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	result := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE product_id IN (?)", ids)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := s.selectAll(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	if err := s.attachProductTags(ctx, products); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ProductID] = p
	}
	return result, nil
}

// UpdateProduct overwrites the attributes and tags of an existing product
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	return s.WithTx(ctx, func(tx *Store) error {
		n, err := tx.exec(ctx, `
			UPDATE products SET price = ?, purchase_price = ?, category = ?, description = ?,
				upc = ?, servings = ?, points = ?, nutrition_score = ?, image_url = ?
			WHERE product_id = ?`,
			product.Price, product.PurchasePrice, string(product.Category), product.Description,
			product.UPC, product.Servings, product.Points, product.NutritionScore,
			product.ImageURL, product.ProductID)
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("product", product.ProductID)
		}
		return tx.replaceProductTags(ctx, product)
	})
}

// RenameProduct moves every reference from oldID to newID in one transaction:
// the new key row is inserted, children are repointed, the old row is removed.
func (s *Store) RenameProduct(ctx context.Context, oldID, newID string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO products (`+productColumns+`)
			SELECT ?, price, purchase_price, category, description, upc,
				servings, points, nutrition_score, image_url, created_at
			FROM products WHERE product_id = ?`, newID, oldID)
		if isUniqueViolation(err) {
			return apperror.Conflict("product already exists").With("product_id", newID)
		}
		if err != nil {
			return fmt.Errorf("failed to copy product: %w", err)
		}

		for _, stmt := range []string{
			"UPDATE product_tags SET product_id = ? WHERE product_id = ?",
			"UPDATE movements SET product_id = ? WHERE product_id = ?",
			"UPDATE stock_balances SET product_id = ? WHERE product_id = ?",
			"UPDATE order_items SET product_id = ? WHERE product_id = ?",
			"UPDATE movement_corrections SET old_product_id = ? WHERE old_product_id = ?",
			"UPDATE movement_corrections SET new_product_id = ? WHERE new_product_id = ?",
		} {
			if _, err := tx.exec(ctx, stmt, newID, oldID); err != nil {
				return fmt.Errorf("failed to repoint product references: %w", err)
			}
		}

		n, err := tx.exec(ctx, "DELETE FROM products WHERE product_id = ?", oldID)
		if err != nil {
			return fmt.Errorf("failed to remove old product key: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("product", oldID)
		}
		return nil
	})
}

// DeleteProduct removes a product that has no ledger history
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		var used bool
		if err := tx.get(ctx, &used,
			"SELECT EXISTS(SELECT 1 FROM movements WHERE product_id = ?)", id); err != nil {
			return err
		}
		if used {
			return apperror.Conflict("product has ledger history").With("product_id", id)
		}

		for _, stmt := range []string{
			"DELETE FROM product_tags WHERE product_id = ?",
			"DELETE FROM stock_balances WHERE product_id = ?",
		} {
			if _, err := tx.exec(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to delete product children: %w", err)
			}
		}

		n, err := tx.exec(ctx, "DELETE FROM products WHERE product_id = ?", id)
		if isForeignKeyViolation(err) {
			return apperror.Conflict("product is referenced by orders").With("product_id", id)
		}
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("product", id)
		}
		return nil
	})
}

type tagRow struct {
	Owner string `db:"owner"`
	Kind  string `db:"kind"`
	Tag   string `db:"tag"`
}

func (s *Store) attachProductTags(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ProductID
	}

	rows, err := s.loadTags(ctx, "product_tags", "product_id", ids)
	if err != nil {
		return err
	}
	for i := range products {
		products[i].DietaryIndicators = rows[products[i].ProductID][models.TagKindDietary]
		products[i].Allergens = rows[products[i].ProductID][models.TagKindAllergen]
		if products[i].DietaryIndicators == nil {
			products[i].DietaryIndicators = models.NewTagSet()
		}
		if products[i].Allergens == nil {
			products[i].Allergens = models.NewTagSet()
		}
	}
	return nil
}

func (s *Store) replaceProductTags(ctx context.Context, product *models.Product) error {
	return s.replaceTags(ctx, "product_tags", "product_id", product.ProductID, map[models.TagKind]models.TagSet{
		models.TagKindDietary:  product.DietaryIndicators,
		models.TagKindAllergen: product.Allergens,
	})
}

// loadTags reads owner -> kind -> set for the given owners of a tag table
func (s *Store) loadTags(ctx context.Context, table, ownerCol string, owners []string) (map[string]map[models.TagKind]models.TagSet, error) {
	query, args, err := sqlx.In(
		fmt.Sprintf("SELECT %s AS owner, kind, tag FROM %s WHERE %s IN (?)", ownerCol, table, ownerCol),
		owners)
	if err != nil {
		return nil, err
	}

	var rows []tagRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}

	result := make(map[string]map[models.TagKind]models.TagSet)
	for _, r := range rows {
		byKind, ok := result[r.Owner]
		if !ok {
			byKind = make(map[models.TagKind]models.TagSet)
			result[r.Owner] = byKind
		}
		kind := models.TagKind(r.Kind)
		if byKind[kind] == nil {
			byKind[kind] = models.NewTagSet()
		}
		byKind[kind][models.Tag(r.Tag)] = struct{}{}
	}
	return result, nil
}

func (s *Store) replaceTags(ctx context.Context, table, ownerCol, owner string, sets map[models.TagKind]models.TagSet) error {
	if _, err := s.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, ownerCol), owner); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s, kind, tag) VALUES (?, ?, ?)", table, ownerCol)
	for kind, set := range sets {
		for _, tag := range set.Sorted() {
			if _, err := s.exec(ctx, insert, owner, string(kind), string(tag)); err != nil {
				return fmt.Errorf("failed to insert %s: %w", table, err)
			}
		}
	}
	return nil
}

// EnsureLocation creates a location if missing; system locations are always
// flagged as such.
func (s *Store) EnsureLocation(ctx context.Context, id string, system bool) error {
	_, err := s.exec(ctx, `
		INSERT INTO locations (location_id, system, created_at) VALUES (?, ?, ?)
		ON CONFLICT (location_id) DO UPDATE SET system = excluded.system`,
		id, system, now())
	if err != nil {
		return fmt.Errorf("failed to ensure location %s: %w", id, err)
	}
	return nil
}

// CreateLocation inserts a staff-defined location
func (s *Store) CreateLocation(ctx context.Context, id string) (*models.Location, error) {
	loc := models.Location{LocationID: id, CreatedAt: now()}
	_, err := s.exec(ctx,
		"INSERT INTO locations (location_id, system, created_at) VALUES (?, ?, ?)",
		loc.LocationID, loc.System, loc.CreatedAt)
	if isUniqueViolation(err) {
		return nil, apperror.Conflict("location already exists").With("location_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert location: %w", err)
	}
	return &loc, nil
}

// GetLocation retrieves a location by key
func (s *Store) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	var loc models.Location
	err := s.get(ctx, &loc, "SELECT location_id, system, created_at FROM locations WHERE location_id = ?", id)
	if isNoRows(err) {
		return nil, apperror.NotFound("location", id)
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// LocationExists reports whether a location key is taken
func (s *Store) LocationExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.get(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM locations WHERE location_id = ?)", id)
	return exists, err
}

// GetLocations lists every location by key
func (s *Store) GetLocations(ctx context.Context) ([]models.Location, error) {
	locations := []models.Location{}
	err := s.selectAll(ctx, &locations, "SELECT location_id, system, created_at FROM locations ORDER BY location_id")
	return locations, err
}

// RenameLocation repoints movements and balances from oldID to newID in one
// transaction. System locations are refused by the caller.
func (s *Store) RenameLocation(ctx context.Context, oldID, newID string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO locations (location_id, system, created_at)
			SELECT ?, system, created_at FROM locations WHERE location_id = ?`, newID, oldID)
		if isUniqueViolation(err) {
			return apperror.Conflict("location already exists").With("location_id", newID)
		}
		if err != nil {
			return fmt.Errorf("failed to copy location: %w", err)
		}

		for _, stmt := range []string{
			"UPDATE movements SET from_location = ? WHERE from_location = ?",
			"UPDATE movements SET to_location = ? WHERE to_location = ?",
			"UPDATE stock_balances SET location_id = ? WHERE location_id = ?",
			"UPDATE movement_corrections SET old_from_location = ? WHERE old_from_location = ?",
			"UPDATE movement_corrections SET old_to_location = ? WHERE old_to_location = ?",
			"UPDATE movement_corrections SET new_from_location = ? WHERE new_from_location = ?",
			"UPDATE movement_corrections SET new_to_location = ? WHERE new_to_location = ?",
			"UPDATE orders SET satellite_location = ? WHERE satellite_location = ?",
		} {
			if _, err := tx.exec(ctx, stmt, newID, oldID); err != nil {
				return fmt.Errorf("failed to repoint location references: %w", err)
			}
		}

		n, err := tx.exec(ctx, "DELETE FROM locations WHERE location_id = ?", oldID)
		if err != nil {
			return fmt.Errorf("failed to remove old location key: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("location", oldID)
		}
		return nil
	})
}

// DeleteLocation removes a location no movement references
func (s *Store) DeleteLocation(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		var used bool
		if err := tx.get(ctx, &used,
			"SELECT EXISTS(SELECT 1 FROM movements WHERE from_location = ? OR to_location = ?)", id, id); err != nil {
			return err
		}
		if used {
			return apperror.Conflict("location is referenced by movements").With("location_id", id)
		}

		if _, err := tx.exec(ctx, "DELETE FROM stock_balances WHERE location_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete location balances: %w", err)
		}
		n, err := tx.exec(ctx, "DELETE FROM locations WHERE location_id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete location: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("location", id)
		}
		return nil
	})
}
