package envelope

import (
	"fmt"

	"github.com/smallwat3r/secretlink/internal/domain"
)

func decryptionError(detail string) error {
	return fmt.Errorf("%w: %s", domain.ErrDecryption, detail)
}

func locatorError(detail string) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedLocator, detail)
}
