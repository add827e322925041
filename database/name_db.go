package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// AddNames upserts a batch of name labels keyed by text equality and returns
// their uids in input order. Duplicate texts resolve to one id; re-adding an
// existing name returns its original id.
func AddNames(db Querier, texts []string) ([]int64, error) {
	for _, text := range texts {
		sqlStr, args, err := psql.Insert("names").
			Columns("name_text").
			Values(text).
			Suffix("ON CONFLICT(name_text) DO NOTHING").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for AddNames: %w", err)
		}
		if _, err := db.Exec(sqlStr, args...); err != nil {
			return nil, fmt.Errorf("failed to insert name %q: %w", text, err)
		}
	}

	// select-back, so already-present rows resolve to their existing uid
	ids := make([]int64, len(texts))
	for i, text := range texts {
		sqlStr, args, err := psql.Select("name_uid").
			From("names").
			Where(sq.Eq{"name_text": text}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for AddNames lookup: %w", err)
		}
		if err := db.QueryRow(sqlStr, args...).Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("failed to resolve name %q: %w", text, err)
		}
	}
	return ids, nil
}

// GetNameTexts returns the label text for each name uid, nil for unknown ids.
func GetNameTexts(db Querier, nameIDs []int64) ([]*string, error) {
	ids := make([]interface{}, len(nameIDs))
	for i, id := range nameIDs {
		ids[i] = id
	}
	values, err := GetTableProperty(db, "names", "name_text", ids)
	if err != nil {
		return nil, err
	}
	return anyToStrings(values), nil
}

// ValidNameIDs lists every name uid except the unknown sentinel.
func ValidNameIDs(db Querier) ([]int64, error) {
	sqlStr, args, err := psql.Select("name_uid").
		From("names").
		Where(sq.NotEq{"name_text": UnknownNameText}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ValidNameIDs: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list names: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan name uid: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetNameAnnotationUUIDs lists the annotations labeled with a name uid.
func GetNameAnnotationUUIDs(db Querier, nameID int64) ([]string, error) {
	sqlStr, args, err := psql.Select("annot_uuid").
		From("annotations").
		Where(sq.Eq{"name_uid": nameID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for GetNameAnnotationUUIDs: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations for name %d: %w", nameID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, fmt.Errorf("failed to scan annotation uuid: %w", err)
		}
		out = append(out, uuid)
	}
	return out, rows.Err()
}

// GetNameID resolves a single label to its uid without creating it.
func GetNameID(db Querier, text string) (int64, error) {
	sqlStr, args, err := psql.Select("name_uid").
		From("names").
		Where(sq.Eq{"name_text": text}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for GetNameID: %w", err)
	}
	var id int64
	if err := db.QueryRow(sqlStr, args...).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("failed to resolve name %q: %w", text, err)
	}
	return id, nil
}
