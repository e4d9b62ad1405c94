package logging

import (
	"fmt"
	"time"
)

// Logf prints a timestamped log line. Callers prefix messages with a
// subsystem tag, e.g. Logf("[TRACK] saved file %d", id).
func Logf(format string, v ...interface{}) {
	fmt.Printf("[%s] "+format+"\n", append([]interface{}{time.Now().Format(time.RFC3339)}, v...)...)
}
