package storyvault

// Command is one discrete application operation with its options.
// Parsing produces a Command plus the shared Config; the App routes
// execution by the command's concrete type.
type Command interface {
	// Name returns the CLI sub-command this command corresponds to.
	Name() string
}

// RunCommand starts the HTTP server.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }

// MigrateCommand creates or updates the relational schema. The
// document store is schemaless and needs no preparation.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }

// ReplayCommand re-applies journaled divergences to the relational
// store, draining the backlog a circuit-open period left behind.
type ReplayCommand struct {
	// JournalPath overrides the configured journal location.
	JournalPath string
	// DryRun decodes and reports without writing.
	DryRun bool
}

func (c *ReplayCommand) Name() string { return "replay" }

// ValidateCommand runs one consistency sweep over a time window and
// prints the divergent entities.
type ValidateCommand struct {
	// Since and Until bound the sweep, RFC3339. Empty Since means
	// 24 hours ago; empty Until means now.
	Since string
	Until string
}

func (c *ValidateCommand) Name() string { return "validate" }
