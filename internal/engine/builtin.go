package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// DefaultRegistry returns a registry with the built-in tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Registration on a fresh registry cannot collide.
	_ = r.Register(Tool{
		Name:        "current_datetime",
		Description: "Returns the current date and time, optionally in a named IANA time zone.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"timezone": {
					Type:        genai.TypeString,
					Description: "IANA time zone such as Asia/Seoul. Defaults to UTC.",
				},
			},
		},
	}, currentDatetime(time.Now))
	return r
}

func currentDatetime(now func() time.Time) Handler {
	return func(_ context.Context, args json.RawMessage) (Result, error) {
		var in struct {
			Timezone string `json:"timezone"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return Result{}, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		loc := time.UTC
		if in.Timezone != "" {
			l, err := time.LoadLocation(in.Timezone)
			if err != nil {
				return Result{Content: fmt.Sprintf("unknown time zone %q", in.Timezone), IsError: true}, nil
			}
			loc = l
		}
		return Result{Content: now().In(loc).Format(time.RFC1123)}, nil
	}
}
