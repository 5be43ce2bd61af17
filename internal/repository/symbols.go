package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/database"
	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

// SymbolRepository handles the master symbol registry and its aliases.
type SymbolRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSymbolRepository creates a new symbol repository
func NewSymbolRepository(db *sql.DB, log zerolog.Logger) *SymbolRepository {
	return &SymbolRepository{
		db:  db,
		log: log.With().Str("repo", "symbols").Logger(),
	}
}

// Resolve maps a surface symbol to its master id. A surface symbol resolves
// to exactly one master id or fails with domain.ErrNotFound; it never guesses.
func (r *SymbolRepository) Resolve(surfaceSymbol string) (int64, error) {
	normalized := strings.ToUpper(strings.TrimSpace(surfaceSymbol))
	if normalized == "" {
		return 0, fmt.Errorf("resolve %q: %w", surfaceSymbol, domain.ErrNotFound)
	}

	query := "SELECT symbol_id FROM " + TableSymbolAliases + " WHERE alias = ? LIMIT 1"

	var id int64
	err := r.db.QueryRow(query, normalized).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("resolve %q: %w", surfaceSymbol, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve symbol %q: %w", surfaceSymbol, err)
	}

	return id, nil
}

// ResolveAlias returns the surface symbol of a given type for a master id,
// used for display<->vendor translation before provider calls.
func (r *SymbolRepository) ResolveAlias(symbolID int64, aliasType domain.AliasType) (string, error) {
	query := "SELECT alias FROM " + TableSymbolAliases + " WHERE symbol_id = ? AND alias_type = ? LIMIT 1"

	var alias string
	err := r.db.QueryRow(query, symbolID, string(aliasType)).Scan(&alias)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no %s alias for symbol id %d: %w", aliasType, symbolID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s alias for symbol id %d: %w", aliasType, symbolID, err)
	}

	return alias, nil
}

// ListActive returns (master id, display symbol) for every active symbol,
// joined over master x primary display alias. This is the set the controller
// fans out over each night.
func (r *SymbolRepository) ListActive() ([]domain.ActiveSymbol, error) {
	query := `
		SELECT s.id, a.alias
		FROM ` + TableSymbols + ` s
		JOIN ` + TableSymbolAliases + ` a ON a.symbol_id = s.id
		WHERE s.active = 1 AND a.alias_type = ? AND a.is_primary = 1
		ORDER BY a.alias
	`

	rows, err := r.db.Query(query, string(domain.AliasDisplay))
	if err != nil {
		return nil, fmt.Errorf("failed to query active symbols: %w", err)
	}
	defer rows.Close()

	var symbols []domain.ActiveSymbol
	for rows.Next() {
		var s domain.ActiveSymbol
		if err := rows.Scan(&s.ID, &s.Display); err != nil {
			return nil, fmt.Errorf("failed to scan active symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active symbols: %w", err)
	}

	return symbols, nil
}

// Get returns the master record for a symbol id.
func (r *SymbolRepository) Get(id int64) (*domain.Symbol, error) {
	query := `
		SELECT id, name, exchange, currency, COALESCE(sector, ''), COALESCE(industry, ''), active
		FROM ` + TableSymbols + ` WHERE id = ?
	`

	var s domain.Symbol
	var active int
	err := r.db.QueryRow(query, id).Scan(
		&s.ID, &s.Name, &s.Exchange, &s.Currency, &s.Sector, &s.Industry, &active,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("symbol id %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol %d: %w", id, err)
	}
	s.Active = active == 1

	return &s, nil
}

// ListCompanies returns (display symbol, company name) pairs for every active
// symbol. The read API loads this once at startup for the in-memory search index.
func (r *SymbolRepository) ListCompanies() (map[string]string, error) {
	query := `
		SELECT a.alias, s.name
		FROM ` + TableSymbols + ` s
		JOIN ` + TableSymbolAliases + ` a ON a.symbol_id = s.id
		WHERE s.active = 1 AND a.alias_type = ? AND a.is_primary = 1
	`

	rows, err := r.db.Query(query, string(domain.AliasDisplay))
	if err != nil {
		return nil, fmt.Errorf("failed to query company names: %w", err)
	}
	defer rows.Close()

	companies := make(map[string]string)
	for rows.Next() {
		var symbol, name string
		if err := rows.Scan(&symbol, &name); err != nil {
			return nil, fmt.Errorf("failed to scan company name: %w", err)
		}
		companies[symbol] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company names: %w", err)
	}

	return companies, nil
}

// Create onboards a master symbol together with its aliases in one
// transaction. Alias symbols are normalized to upper case.
func (r *SymbolRepository) Create(sym domain.Symbol, aliases []domain.SymbolAlias) (int64, error) {
	var id int64

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO `+TableSymbols+` (name, exchange, currency, sector, industry, active)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sym.Name, sym.Exchange, sym.Currency, sym.Sector, sym.Industry, boolToInt(sym.Active))
		if err != nil {
			return classifyWriteErr(TableSymbols, err)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get new symbol id: %w", err)
		}

		for _, a := range aliases {
			res, err := tx.Exec(`
				INSERT INTO `+TableSymbolAliases+` (symbol_id, alias, alias_type, is_primary)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(symbol_id, alias) DO UPDATE SET
					alias_type = excluded.alias_type,
					is_primary = excluded.is_primary
			`, id, strings.ToUpper(strings.TrimSpace(a.Alias)), string(a.Type), boolToInt(a.Primary))
			if err != nil {
				return classifyWriteErr(TableSymbolAliases, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			if err := requireAffected("insert alias", TableSymbolAliases, affected); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	r.log.Info().Int64("symbol_id", id).Str("name", sym.Name).Msg("Symbol onboarded")
	return id, nil
}

// SetActive soft-deletes or revives a symbol. Data is never removed.
func (r *SymbolRepository) SetActive(id int64, active bool) error {
	res, err := r.db.Exec(`
		UPDATE `+TableSymbols+` SET active = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')
		WHERE id = ?
	`, boolToInt(active), id)
	if err != nil {
		return classifyWriteErr(TableSymbols, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	return requireAffected("set active", TableSymbols, affected)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
