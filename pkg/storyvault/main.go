package storyvault

import (
	"context"
	"fmt"
)

// Main is the entry point behind cmd/storyvault. It parses arguments,
// assembles the App, and dispatches the command. Tests call it
// directly without building the binary.
func Main(ctx context.Context, args []string) error {
	cmd, cfg, err := Parse(args)
	if err != nil {
		return fmt.Errorf("parsing configuration: %w", err)
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating application: %w", err)
	}
	defer app.Close()

	switch c := cmd.(type) {
	case *MigrateCommand:
		if err := app.Migrate(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *ReplayCommand:
		if err := app.Replay(ctx, c); err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}
	case *ValidateCommand:
		if err := app.Validate(ctx, c); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}
	return nil
}
