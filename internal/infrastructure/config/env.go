package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadDotEnv exports the variables of the first existing file in files into
// the process environment, so Load picks them up as MKTSYNC_* overrides.
// Variables already set in the environment win. Missing files are skipped;
// the returned path is empty when none exists.
func LoadDotEnv(files ...string) (string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil {
			return f, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return "", fmt.Errorf("error reading %s: %w", f, err)
	}
	return "", nil
}
