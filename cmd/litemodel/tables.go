package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/litemodel/internal/infrastructure/config"
	"github.com/nerrad567/litemodel/internal/model"
	"github.com/nerrad567/litemodel/internal/schema"
)

// createTables builds a model per declared table and creates it, in
// declaration order. Existing tables are checked against their declaration.
func createTables(ctx context.Context, tables []config.TableConfig, deps model.Deps) ([]*model.Model, error) {
	models := make([]*model.Model, 0, len(tables))
	for _, tc := range tables {
		m, err := defineTable(tc, deps)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", tc.Name, err)
		}
		if err := m.Create(ctx); err != nil {
			return nil, fmt.Errorf("table %q: %w", tc.Name, err)
		}
		models = append(models, m)
	}
	return models, nil
}

// defineTable translates a table declaration into model schema calls.
func defineTable(tc config.TableConfig, deps model.Deps) (*model.Model, error) {
	m, err := model.New(tc.Name, deps)
	if err != nil {
		return nil, err
	}

	for _, c := range tc.Columns {
		var opts []model.ColumnOption
		if c.PrimaryKey {
			opts = append(opts, model.PrimaryKey())
		}
		if c.Nullable != nil {
			opts = append(opts, model.Nullable(*c.Nullable))
		}
		if c.MaxLength > 0 {
			opts = append(opts, model.MaxLength(c.MaxLength))
		}
		if c.Default != nil {
			opts = append(opts, model.Default(c.Default))
		}
		if err := m.AddColumn(c.Name, schema.ColumnType(c.Type), opts...); err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	for _, cols := range tc.Unique {
		if err := m.AddUniqueConstraint(cols...); err != nil {
			return nil, err
		}
	}
	for _, fk := range tc.ForeignKeys {
		if err := m.AddForeignKey(fk.Column, fk.References, fk.OnDelete); err != nil {
			return nil, fmt.Errorf("foreign key on %q: %w", fk.Column, err)
		}
	}
	for _, idx := range tc.Indexes {
		if err := m.CreateIndex(idx.Name, idx.Columns, idx.Unique); err != nil {
			return nil, fmt.Errorf("index %q: %w", idx.Name, err)
		}
	}
	return m, nil
}
