package tools

import (
	"context"
	"encoding/json"
	"time"
)

// NewCurrentTimeTool returns the built-in clock tool. It takes no arguments.
func NewCurrentTimeTool() Tool {
	return Tool{
		Name:        "get_current_time",
		Description: "Returns the current date and time. It takes no arguments.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
			"required":   []interface{}{},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			out, err := json.Marshal(map[string]string{
				"status":       "success",
				"current_time": time.Now().Format("2006-01-02 15:04:05"),
			})
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
