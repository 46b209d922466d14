package seed

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/taller/internal/projects"
	"github.com/Simplici0/taller/internal/quote"
)

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
	Company       quote.Company
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// Run executes the startup seed in an idempotent way.
func Run(db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := seedAdmin(tx, cfg.AdminEmail, cfg.AdminPassword, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureCompany(tx, cfg.Company, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func seedAdmin(tx *sql.Tx, email, password string, stats *Stats) error {
	if email == "" || password == "" {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE email = ? LIMIT 1)`, email).Scan(&exists); err != nil {
		return fmt.Errorf("check admin user existence: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO users (email, password_hash) VALUES (?, ?)`, email, string(hash)); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}

// ensureCompany stores the default company profile unless one already exists. An existing
// profile is never overwritten: it may have been edited through the API.
func ensureCompany(tx *sql.Tx, company quote.Company, stats *Stats) error {
	if company.ID == "" {
		return nil
	}
	if err := company.Validate(); err != nil {
		return fmt.Errorf("default company: %w", err)
	}

	data, err := json.Marshal(company)
	if err != nil {
		return fmt.Errorf("encode default company: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO documents (collection, id, data, version)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(collection, id) DO NOTHING
	`, projects.CompaniesCollection, company.ID, string(data))
	if err != nil {
		return fmt.Errorf("insert default company: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert default company: %w", err)
	}
	stats.Inserts += int(affected)
	return nil
}
