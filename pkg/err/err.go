package errprocess

import (
	"errors"

	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/logger"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
