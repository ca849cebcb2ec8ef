package checks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"payout-reconciler/core/database"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// SchemaReport is the result of comparing a live table with its model.
type SchemaReport struct {
	Table          string   `json:"table"`
	Matched        bool     `json:"matched"`
	TableMissing   bool     `json:"table_missing"`
	MissingColumns []string `json:"missing_columns"`
	TypeMismatches []string `json:"type_mismatches"`
}

// CheckSchema verifies that the table behind model has every column the
// model maps, using the GORM schema as the source of truth. Types are only
// compared for fields with an explicit type tag.
func CheckSchema(ctx context.Context, db *gorm.DB, model any) (*SchemaReport, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}

	s, err := schema.Parse(model, &sync.Map{}, db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}

	report := &SchemaReport{
		Table:          s.Table,
		Matched:        true,
		MissingColumns: []string{},
		TypeMismatches: []string{},
	}

	actualCols, err := database.GetTableColumns(db.WithContext(ctx), s.Table)
	if err != nil {
		return nil, err
	}
	if len(actualCols) == 0 {
		report.TableMissing = true
	}

	actual := make(map[string]database.ColumnInfo, len(actualCols))
	for _, col := range actualCols {
		actual[col.Field] = col
	}

	for _, field := range s.Fields {
		if field.DBName == "" {
			continue
		}
		col, ok := actual[strings.ToLower(field.DBName)]
		if !ok {
			report.MissingColumns = append(report.MissingColumns, field.DBName)
			report.Matched = false
			continue
		}

		expType := strings.ToLower(field.TagSettings["TYPE"])
		if expType == "" {
			continue
		}
		if !sameBaseType(expType, col.Type) {
			report.TypeMismatches = append(report.TypeMismatches,
				fmt.Sprintf("%s: expected %s, got %s", field.DBName, expType, col.Type))
			report.Matched = false
		}
	}
	return report, nil
}

// sameBaseType compares type names without precision. Postgres reports
// decimals as numeric.
func sameBaseType(expected, actual string) bool {
	base := func(t string) string {
		if i := strings.IndexByte(t, '('); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t)
		if t == "numeric" {
			return "decimal"
		}
		return t
	}
	return base(expected) == base(actual)
}
