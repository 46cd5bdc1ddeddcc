package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"warescan/internal/models"
)

// ProductRepository stores the product catalog served by the mock
// detection service.
type ProductRepository struct {
	db *DB
}

// NewProductRepository creates a new SQLite product repository.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Insert adds a product; duplicate UPCs are ignored.
func (r *ProductRepository) Insert(p *models.Product) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT OR IGNORE INTO products (upc, name, main_category)
		VALUES (?, ?, ?)
	`, p.UPC, p.Name, p.MainCategory)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// GetByUPC retrieves one product, or nil when unknown.
func (r *ProductRepository) GetByUPC(upc string) (*models.Product, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var p models.Product
	err := r.db.Conn().QueryRow(`
		SELECT upc, name, main_category FROM products WHERE upc = ?
	`, upc).Scan(&p.UPC, &p.Name, &p.MainCategory)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetAll retrieves every product, optionally filtered by name substring.
func (r *ProductRepository) GetAll(query string) ([]models.Product, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stmt := `SELECT upc, name, main_category FROM products`
	args := []interface{}{}
	if query != "" {
		stmt += ` WHERE name LIKE ?`
		args = append(args, "%"+strings.TrimSpace(query)+"%")
	}
	stmt += ` ORDER BY name`

	rows, err := r.db.Conn().Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.UPC, &p.Name, &p.MainCategory); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Count returns the number of catalog entries.
func (r *ProductRepository) Count() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// Seed fills an empty catalog with a handful of demo products.
func (r *ProductRepository) Seed() error {
	count, err := r.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	demo := []models.Product{
		{UPC: "036000291452", Name: "Hand Soap 250ml", MainCategory: "Hygiene"},
		{UPC: "012000161155", Name: "Paper Towels 6pk", MainCategory: "Cleaning"},
		{UPC: "049000042566", Name: "Dish Detergent 1L", MainCategory: "Cleaning"},
		{UPC: "038000138416", Name: "Nitrile Gloves L", MainCategory: "Safety"},
		{UPC: "072140015196", Name: "Packing Tape 50m", MainCategory: "Packaging"},
		{UPC: "021000658831", Name: "Stretch Wrap Roll", MainCategory: "Packaging"},
	}
	for i := range demo {
		if err := r.Insert(&demo[i]); err != nil {
			return err
		}
	}
	return nil
}
