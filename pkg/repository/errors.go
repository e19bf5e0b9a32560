package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// translate maps gorm errors onto the repository error set
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
