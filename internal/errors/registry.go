package errors

import "sort"

// Template defines a registered error.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

var registry = map[string]Template{
	// Configuration (E200-E219)

	"E200": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No replay.yaml, replay.yml or replay.json was found in the given directory.",
	},
	"E201": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The configuration file could not be parsed.",
	},
	"E202": {
		Category: CategoryConfig,
		Message:  "Invalid server address",
		Detail:   "The server address must have the form host:port or :port.",
	},
	"E203": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Timeouts and ages are Go durations such as \"500ms\", \"30s\" or \"24h\".",
	},
	"E204": {
		Category: CategoryConfig,
		Message:  "Invalid resolution mode",
		Detail:   "Replay resolution is either \"positional\" or \"verified\".",
	},
	"E205": {
		Category: CategoryConfig,
		Message:  "Invalid journal sink",
		Detail:   "The journal sink is one of \"none\", \"memory\", \"disk\" or \"s3\".",
	},
	"E206": {
		Category: CategoryConfig,
		Message:  "Incomplete journal sink",
		Detail:   "The disk sink needs a directory and the s3 sink needs a bucket.",
	},
	"E207": {
		Category: CategoryConfig,
		Message:  "Invalid limit",
		Detail:   "Sizes and limits cannot be negative.",
	},
	"E208": {
		Category: CategoryConfig,
		Message:  "Invalid log setting",
		Detail:   "The log level is debug, info, warn or error and the format is text or json.",
	},

	// Server (E220-E239)

	"E220": {
		Category: CategoryServer,
		Message:  "Server failed",
		Detail:   "The HTTP server stopped with an error.",
	},
	"E221": {
		Category: CategoryServer,
		Message:  "Shutdown timed out",
		Detail:   "Some pages were still running when the shutdown timeout expired.",
	},

	// Journal (E240-E259)

	"E240": {
		Category: CategoryJournal,
		Message:  "Journal store unavailable",
		Detail:   "The configured journal store could not be opened.",
	},
	"E241": {
		Category: CategoryJournal,
		Message:  "Journal not found",
		Detail:   "No journal was recorded for this page.",
	},

	// Command line (E260-E279)

	"E260": {
		Category: CategoryCLI,
		Message:  "Invalid argument",
		Detail:   "A command line argument could not be used.",
	},
	"E261": {
		Category: CategoryCLI,
		Message:  "Simulation failed",
		Detail:   "The simulated page load did not complete.",
	},
}

// Codes returns all registered codes in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Lookup returns the template for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds or replaces a template.
func Register(code string, t Template) {
	registry[code] = t
}
