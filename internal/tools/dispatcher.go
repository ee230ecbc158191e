package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hungnci/elevate-fitness/pkg/gemlive"
)

// Dispatcher executes tool call batches against a registry. Every batch of N
// calls yields exactly N results in request order; failures are folded into
// error payloads so one bad call never starves its siblings of a response.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Handle runs one batch sequentially and returns its results.
func (d *Dispatcher) Handle(ctx context.Context, actor Actor, calls []gemlive.FunctionCall) []gemlive.FunctionResult {
	results := make([]gemlive.FunctionResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, gemlive.FunctionResult{
			ID:       call.ID,
			Name:     call.Name,
			Response: d.run(ctx, actor, call),
		})
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, actor Actor, call gemlive.FunctionCall) map[string]any {
	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		d.logger.Warn("unknown tool requested", zap.String("name", call.Name))
		return map[string]any{"error": fmt.Sprintf("Unknown function %s", call.Name)}
	}

	response, err := tool.Run(ctx, actor, call.Args)
	if err != nil {
		d.logger.Warn("tool call failed", zap.String("name", call.Name), zap.Error(err))
		return map[string]any{"error": err.Error()}
	}
	if response == nil {
		response = map[string]any{"success": true}
	}
	return response
}

// stringArg extracts a non-empty string argument.
func stringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
