package store

import (
	"context"
	"database/sql"
	"strings"
)

// Master data: flat id/name reference lists used by incident forms. Lookups
// resolve ids carried in inbound payloads to display names.
type MasterItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type SubCategory struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
}

type MasterStore interface {
	ListCategories(ctx context.Context) ([]MasterItem, error)
	ListSubCategories(ctx context.Context, categoryID int64) ([]SubCategory, error)
	ListUrgencies(ctx context.Context) ([]MasterItem, error)
	ListContactTypes(ctx context.Context) ([]MasterItem, error)

	CategoryName(ctx context.Context, id int64) (string, error)
	SubCategoryName(ctx context.Context, id int64) (string, error)
	UrgencyName(ctx context.Context, id int64) (string, error)
	ContactTypeName(ctx context.Context, id int64) (string, error)

	AddCategory(ctx context.Context, name string) (int64, error)
	AddSubCategory(ctx context.Context, categoryID int64, name string) (int64, error)
	AddUrgency(ctx context.Context, name string) (int64, error)
	AddContactType(ctx context.Context, name string) (int64, error)
}

type masterStore struct {
	db *DB
}

func NewMasterStore(db *DB) MasterStore {
	return &masterStore{db: db}
}

func (s *masterStore) ListCategories(ctx context.Context) ([]MasterItem, error) {
	return s.listItems(ctx, "categories")
}

func (s *masterStore) ListUrgencies(ctx context.Context) ([]MasterItem, error) {
	return s.listItems(ctx, "urgencies")
}

func (s *masterStore) ListContactTypes(ctx context.Context) ([]MasterItem, error) {
	return s.listItems(ctx, "contact_types")
}

func (s *masterStore) ListSubCategories(ctx context.Context, categoryID int64) ([]SubCategory, error) {
	query := `SELECT id, category_id, name FROM subcategories`
	var args []any
	if categoryID > 0 {
		query += ` WHERE category_id=?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SubCategory
	for rows.Next() {
		var sc SubCategory
		if err := rows.Scan(&sc.ID, &sc.CategoryID, &sc.Name); err != nil {
			return nil, err
		}
		res = append(res, sc)
	}
	return res, rows.Err()
}

func (s *masterStore) CategoryName(ctx context.Context, id int64) (string, error) {
	return s.itemName(ctx, "categories", id)
}

func (s *masterStore) SubCategoryName(ctx context.Context, id int64) (string, error) {
	return s.itemName(ctx, "subcategories", id)
}

func (s *masterStore) UrgencyName(ctx context.Context, id int64) (string, error) {
	return s.itemName(ctx, "urgencies", id)
}

func (s *masterStore) ContactTypeName(ctx context.Context, id int64) (string, error) {
	return s.itemName(ctx, "contact_types", id)
}

func (s *masterStore) AddCategory(ctx context.Context, name string) (int64, error) {
	return s.addItem(ctx, "categories", name)
}

func (s *masterStore) AddUrgency(ctx context.Context, name string) (int64, error) {
	return s.addItem(ctx, "urgencies", name)
}

func (s *masterStore) AddContactType(ctx context.Context, name string) (int64, error) {
	return s.addItem(ctx, "contact_types", name)
}

func (s *masterStore) AddSubCategory(ctx context.Context, categoryID int64, name string) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `INSERT INTO subcategories(category_id, name) VALUES(?,?) RETURNING id`, categoryID, strings.TrimSpace(name)).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *masterStore) listItems(ctx context.Context, table string) ([]MasterItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM `+table+` ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []MasterItem
	for rows.Next() {
		var it MasterItem
		if err := rows.Scan(&it.ID, &it.Name); err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// itemName returns "" for an unknown id: callers render unresolved
// references as empty rather than failing the whole response.
func (s *masterStore) itemName(ctx context.Context, table string, id int64) (string, error) {
	if id <= 0 {
		return "", nil
	}
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM `+table+` WHERE id=?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (s *masterStore) addItem(ctx context.Context, table string, name string) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `INSERT INTO `+table+`(name) VALUES(?) RETURNING id`, strings.TrimSpace(name)).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
