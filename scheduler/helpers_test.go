package scheduler

import (
	"os"
	"time"
)

func writeFile(path, body string) error {
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		return err
	}
	later := time.Now().Add(time.Minute)
	return os.Chtimes(path, later, later)
}
