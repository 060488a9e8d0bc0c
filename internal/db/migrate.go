package db

import (
	"fmt"

	"github.com/mps-suite/mps-engine/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the engine schema.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.Admin{},
		&models.Member{},
		&models.Merchant{},
		&models.Card{},
		&models.CardBinding{},
		&models.QRToken{},
		&models.Transaction{},
		&models.Settlement{},
		&models.Setting{},
	)
}
