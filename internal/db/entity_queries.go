package db

import (
	"context"
	"fmt"

	"townbeat/internal/match"
)

// EntityStore resolves and creates venues and performers under a workspace.
// It satisfies match.Store.
type EntityStore struct {
	pool *Pool
}

func NewEntityStore(pool *Pool) *EntityStore {
	return &EntityStore{pool: pool}
}

// EnsureWorkspace returns the id of the named workspace, creating it when
// absent. Concurrent callers converge on the same row via the unique name.
func (s *EntityStore) EnsureWorkspace(ctx context.Context, name string, synthetic bool) (int64, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO editorial.workspaces (name, synthetic)
		VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING`, name, synthetic)
	if err != nil {
		return 0, fmt.Errorf("ensure workspace %q: %w", name, err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		SELECT workspace_id FROM editorial.workspaces WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("load workspace %q: %w", name, err)
	}
	return id, nil
}

func entityTable(kind match.EntityKind) (table, idColumn, uuidColumn string, err error) {
	switch kind {
	case match.KindVenue:
		return "editorial.venues", "venue_id", "venue_uuid", nil
	case match.KindPerformer:
		return "editorial.performers", "performer_id", "performer_uuid", nil
	default:
		return "", "", "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

func (s *EntityStore) FindEntityByNormalizedName(ctx context.Context, workspaceID int64, kind match.EntityKind, normalizedName string) (*match.Entity, error) {
	table, idColumn, uuidColumn, err := entityTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s, %s, name
		FROM %s
		WHERE workspace_id = ? AND normalized_name = ?`, idColumn, uuidColumn, table)

	var entity match.Entity
	err = s.pool.QueryRow(ctx, query, workspaceID, normalizedName).Scan(&entity.ID, &entity.UUID, &entity.Name)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	entity.Kind = kind
	return &entity, nil
}

func (s *EntityStore) ListEntityNames(ctx context.Context, workspaceID int64, kind match.EntityKind) ([]match.NameRow, error) {
	table, idColumn, uuidColumn, err := entityTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s, %s, name, normalized_name
		FROM %s
		WHERE workspace_id = ?
		ORDER BY %s ASC`, idColumn, uuidColumn, table, idColumn)

	rows, err := s.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []match.NameRow
	for rows.Next() {
		var row match.NameRow
		if err := rows.Scan(&row.ID, &row.UUID, &row.Name, &row.NormalizedName); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CreateEntityIfAbsent inserts the entity, deferring to an existing row when a
// concurrent caller won the unique (workspace_id, normalized_name) race.
func (s *EntityStore) CreateEntityIfAbsent(ctx context.Context, workspaceID int64, entity match.NewEntity) (*match.Entity, error) {
	switch entity.Kind {
	case match.KindVenue:
		_, err := s.pool.Exec(ctx, `
			INSERT INTO editorial.venues
				(workspace_id, name, normalized_name, address, latitude, longitude, postal_code, place_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (workspace_id, normalized_name) DO NOTHING`,
			workspaceID, entity.Name, entity.NormalizedName,
			entity.Address, entity.Latitude, entity.Longitude, entity.PostalCode, entity.PlaceID)
		if err != nil {
			return nil, fmt.Errorf("insert venue %q: %w", entity.Name, err)
		}
	case match.KindPerformer:
		_, err := s.pool.Exec(ctx, `
			INSERT INTO editorial.performers (workspace_id, name, normalized_name)
			VALUES (?, ?, ?)
			ON CONFLICT (workspace_id, normalized_name) DO NOTHING`,
			workspaceID, entity.Name, entity.NormalizedName)
		if err != nil {
			return nil, fmt.Errorf("insert performer %q: %w", entity.Name, err)
		}
	default:
		return nil, fmt.Errorf("unknown entity kind %q", entity.Kind)
	}

	existing, err := s.FindEntityByNormalizedName(ctx, workspaceID, entity.Kind, entity.NormalizedName)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%s %q missing after insert", entity.Kind, entity.Name)
	}
	return existing, nil
}
