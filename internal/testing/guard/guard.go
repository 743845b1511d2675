package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PRESTANA_TEST_MODE") == "" {
			_ = os.Setenv("PRESTANA_TEST_MODE", "1")
		}
	})
}
