package errors

import (
	"fmt"
	"strings"
	"sync"
)

// Collector collects the non-fatal conditions met during one run so the
// CLI can summarise them at the end.
type Collector struct {
	warnings []error
	mutex    sync.RWMutex
}

// NewCollector creates a new warning collector
func NewCollector() *Collector {
	return &Collector{
		warnings: make([]error, 0),
	}
}

// Add records a warning. Nil errors are ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.warnings = append(c.warnings, err)
}

// Warnings returns a copy of all recorded warnings
func (c *Collector) Warnings() []error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]error, len(c.warnings))
	copy(result, c.warnings)
	return result
}

// Count returns the number of recorded warnings
func (c *Collector) Count() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.warnings)
}

// Summary formats the warnings one per line.
func (c *Collector) Summary() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if len(c.warnings) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d warning(s):\n", len(c.warnings))
	for _, w := range c.warnings {
		fmt.Fprintf(&b, "  - %v\n", w)
	}
	return b.String()
}
