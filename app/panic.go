package app

import (
	"fmt"
	"strings"

	"drill/drillos/display"
	"drill/drillos/kernel"
	"drill/hal"
)

// installPanicHandler reports the first task panic on the HAL logger and
// leaves "Err" on the segment display with the stack on screen.
func installPanicHandler(h hal.HAL, r *display.Renderer) {
	kernel.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := []string{
			"Drill Panic:",
			fmt.Sprintf("task: %d (%s)", info.TaskID, info.Task),
			fmt.Sprintf("panic: %v", info.Value),
		}
		if len(info.Stack) > 0 {
			lines = append(lines, "stack:")
			for _, line := range strings.Split(string(info.Stack), "\n") {
				if line == "" {
					continue
				}
				lines = append(lines, strings.ReplaceAll(line, "\t", "  "))
			}
		} else {
			lines = append(lines, "stack: unavailable")
		}

		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}
		if r != nil {
			_ = r.ShowError(lines...)
		}
	})
}
