package persistence

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRecordStore implements integration.RecordStore on GORM. Rows are read
// and written as domain records; the table schema comes from models.
type GormRecordStore struct {
	db *gorm.DB
}

// NewGormRecordStore creates a new record store
func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

// Transaction runs fn against a store bound to one database transaction
func (s *GormRecordStore) Transaction(ctx context.Context, fn func(store integration.RecordStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRecordStore{db: tx})
	})
}

// Select loads the rows matching filter into dest, a pointer to a slice
func (s *GormRecordStore) Select(ctx context.Context, table string, filter integration.Filter, page integration.PageRequest, dest any) error {
	tx, err := s.scope(ctx, table, filter)
	if err != nil {
		return err
	}

	sort := tableSorts[table]
	field := ValidateSortField(page.OrderBy, sort.fields, sort.defaultField)
	dir := "ASC"
	if page.Desc {
		dir = "DESC"
	}
	tx = tx.Order(field + " " + dir)
	if page.Limit > 0 {
		tx = tx.Limit(page.Limit)
	}
	if page.Offset > 0 {
		tx = tx.Offset(page.Offset)
	}

	if err := tx.Find(dest).Error; err != nil {
		return persistenceError("select", table, err)
	}
	return nil
}

// Insert writes one row. row must be a pointer to a domain record.
func (s *GormRecordStore) Insert(ctx context.Context, table string, row any) error {
	if _, ok := tableSorts[table]; !ok {
		return unknownTable(table)
	}
	if err := s.db.WithContext(ctx).Table(table).Create(row).Error; err != nil {
		return persistenceError("insert", table, err)
	}
	return nil
}

// Update sets fields on the row with the given id
func (s *GormRecordStore) Update(ctx context.Context, table string, id any, fields map[string]any) error {
	if _, ok := tableSorts[table]; !ok {
		return unknownTable(table)
	}
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for col, v := range fields {
		if !ValidColumn(col) {
			return fmt.Errorf("%w: column %q", integration.ErrInvalidFilter, col)
		}
		values[col] = normalizeValue(v)
	}

	result := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return persistenceError("update", table, result.Error)
	}
	if result.RowsAffected == 0 {
		return persistenceError("update", table, fmt.Errorf("row %v not found", id))
	}
	return nil
}

// Delete removes the rows matching filter. An empty filter is rejected.
func (s *GormRecordStore) Delete(ctx context.Context, table string, filter integration.Filter) (int64, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("%w: delete requires a condition", integration.ErrInvalidFilter)
	}
	tx, err := s.scope(ctx, table, filter)
	if err != nil {
		return 0, err
	}
	model, _ := models.ForTable(table)

	result := tx.Delete(model)
	if result.Error != nil {
		return 0, persistenceError("delete", table, result.Error)
	}
	return result.RowsAffected, nil
}

// Count returns the number of rows matching filter
func (s *GormRecordStore) Count(ctx context.Context, table string, filter integration.Filter) (int64, error) {
	tx, err := s.scope(ctx, table, filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, persistenceError("count", table, err)
	}
	return n, nil
}

// scope applies the filter conditions in a stable column order
func (s *GormRecordStore) scope(ctx context.Context, table string, filter integration.Filter) (*gorm.DB, error) {
	if _, ok := tableSorts[table]; !ok {
		return nil, unknownTable(table)
	}
	tx := s.db.WithContext(ctx).Table(table)

	for _, col := range slices.Sorted(maps.Keys(filter.Equals)) {
		if !ValidColumn(col) {
			return nil, fmt.Errorf("%w: column %q", integration.ErrInvalidFilter, col)
		}
		tx = tx.Where(col+" = ?", normalizeValue(filter.Equals[col]))
	}
	for _, col := range slices.Sorted(maps.Keys(filter.In)) {
		if !ValidColumn(col) {
			return nil, fmt.Errorf("%w: column %q", integration.ErrInvalidFilter, col)
		}
		values := filter.In[col]
		if len(values) == 0 {
			// IN () matches nothing
			tx = tx.Where("1 = 0")
			continue
		}
		normalized := make([]any, len(values))
		for i, v := range values {
			normalized[i] = normalizeValue(v)
		}
		tx = tx.Where(col+" IN ?", normalized)
	}
	for _, r := range filter.Ranges {
		if !ValidColumn(r.Column) {
			return nil, fmt.Errorf("%w: column %q", integration.ErrInvalidFilter, r.Column)
		}
		if r.From != nil {
			tx = tx.Where(r.Column+" >= ?", normalizeValue(r.From))
		}
		if r.To != nil {
			tx = tx.Where(r.Column+" < ?", normalizeValue(r.To))
		}
	}
	return tx, nil
}

// normalizeValue stores times in UTC so text-encoded timestamps compare in order
func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t == nil {
			return nil
		}
		u := t.UTC()
		return &u
	}
	return v
}

func unknownTable(table string) error {
	return fmt.Errorf("%w: unknown table %q", integration.ErrInvalidFilter, table)
}

func persistenceError(op, table string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", integration.ErrPersistence, op, table, err)
}

var (
	_ integration.RecordStore = (*GormRecordStore)(nil)
	_ integration.Transactor  = (*GormRecordStore)(nil)
)
