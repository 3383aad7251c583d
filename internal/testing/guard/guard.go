package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ARCLINE_TEST_MODE") == "" {
			_ = os.Setenv("ARCLINE_TEST_MODE", "1")
		}
	})
}
