// Package dotenv loads optional .env files before flag parsing.
package dotenv

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads .env from the working directory if present. A missing file is
// fine; a malformed one is not.
func Load() error {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
