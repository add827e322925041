package database

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// AddConfig registers a chip or feature configuration string and returns its
// uid. Derived artifacts are keyed by (source id, config uid), so switching
// configuration and re-requesting the same source produces a distinct cached
// artifact instead of silently reusing a stale one.
func AddConfig(db Querier, configSuffix string) (int64, error) {
	sqlStr, args, err := psql.Insert("configs").
		Columns("config_suffix").
		Values(configSuffix).
		Suffix("ON CONFLICT(config_suffix) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for AddConfig: %w", err)
	}
	if _, err := db.Exec(sqlStr, args...); err != nil {
		return 0, fmt.Errorf("failed to insert config %q: %w", configSuffix, err)
	}

	sqlStr, args, err = psql.Select("config_uid").
		From("configs").
		Where(sq.Eq{"config_suffix": configSuffix}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for AddConfig lookup: %w", err)
	}
	var id int64
	if err := db.QueryRow(sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve config %q: %w", configSuffix, err)
	}
	return id, nil
}
