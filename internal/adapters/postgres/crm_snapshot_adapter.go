package postgres

import (
	"backup-service/internal/core/domain"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"
)

// querier - часть pgxpool.Pool, которая нужна адаптеру
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Запросы выгружают коллекции целиком, порядок стабилен между циклами
const (
	queryProperties   = `SELECT * FROM crm_properties ORDER BY created_at ASC, id ASC`
	queryClients      = `SELECT * FROM crm_clients ORDER BY created_at ASC, id ASC`
	queryShowings     = `SELECT * FROM crm_showings ORDER BY created_at ASC, id ASC`
	queryAdminActions = `SELECT * FROM crm_admin_actions ORDER BY "timestamp" ASC, id ASC`
)

// CRMSnapshotAdapter читает коллекции CRM из PostgreSQL. Только чтение.
type CRMSnapshotAdapter struct {
	pool querier
}

func NewCRMSnapshotAdapter(pool querier) (*CRMSnapshotAdapter, error) {
	if pool == nil {
		return nil, fmt.Errorf("CRMSnapshotAdapter: pool cannot be nil")
	}
	return &CRMSnapshotAdapter{pool: pool}, nil
}

func (a *CRMSnapshotAdapter) GetProperties(ctx context.Context) ([]domain.Record, error) {
	return a.queryCollection(ctx, "properties", queryProperties)
}

func (a *CRMSnapshotAdapter) GetClients(ctx context.Context) ([]domain.Record, error) {
	return a.queryCollection(ctx, "clients", queryClients)
}

func (a *CRMSnapshotAdapter) GetShowings(ctx context.Context) ([]domain.Record, error) {
	return a.queryCollection(ctx, "showings", queryShowings)
}

func (a *CRMSnapshotAdapter) GetAdminActions(ctx context.Context) ([]domain.Record, error) {
	return a.queryCollection(ctx, "adminActions", queryAdminActions)
}

func (a *CRMSnapshotAdapter) queryCollection(ctx context.Context, collection, query string) ([]domain.Record, error) {
	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("CRMSnapshotAdapter: failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	columns := lo.Map(rows.FieldDescriptions(), func(fd pgconn.FieldDescription, _ int) string {
		return columnKey(fd.Name)
	})

	records := make([]domain.Record, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("CRMSnapshotAdapter: failed to scan %s row: %w", collection, err)
		}
		records = append(records, recordFromValues(columns, values))
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("CRMSnapshotAdapter: error during %s rows iteration: %w", collection, err)
	}

	return records, nil
}

// columnKey переводит имя колонки в ключ JSON-документа: owner_phone -> ownerPhone
func columnKey(column string) string {
	return lo.CamelCase(column)
}

func recordFromValues(columns []string, values []any) domain.Record {
	record := make(domain.Record, len(columns))
	for i, column := range columns {
		if i >= len(values) {
			break
		}
		record[column] = normalizeValue(values[i])
	}
	return record
}

// normalizeValue приводит значения pgx к тем типам, которые переживают
// сериализацию в JSON и обратно без изменений
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(val), 'g', -1, 32), 64)
		return f
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case []any:
		return lo.Map(val, func(item any, _ int) any { return normalizeValue(item) })
	case map[string]any:
		return lo.MapValues(val, func(item any, _ string) any { return normalizeValue(item) })
	default:
		return val
	}
}
