package archerlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DebugOptions controls what the DebugManager records, mirroring the
// teacher's optimizer debug tooling (utils.DebugOptions) generalized to
// every LLM-calling component, not just the optimizer.
type DebugOptions struct {
	Enabled      bool
	OutputDir    string
	SaveToFile   bool
	LogPrompts   bool
	LogResponses bool
}

// DebugManager optionally records prompts and responses sent to the LLM
// Caller for later inspection. It never affects control flow: a cycle
// behaves identically whether or not debugging is enabled.
type DebugManager struct {
	options   DebugOptions
	logger    Logger
	outputDir string
}

// NewDebugManager constructs a DebugManager. A nil logger falls back to
// Nop().
func NewDebugManager(logger Logger, options DebugOptions) *DebugManager {
	if logger == nil {
		logger = Nop()
	}
	outputDir := options.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(".", "debug_output")
	}
	if options.SaveToFile && options.Enabled {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			logger.Warn("failed to create debug output directory", "error", err, "dir", outputDir)
		}
	}
	return &DebugManager{options: options, logger: logger, outputDir: outputDir}
}

// LogPrompt records an outgoing prompt if prompt logging is enabled.
func (dm *DebugManager) LogPrompt(label, text string) {
	if dm == nil || !dm.options.Enabled || !dm.options.LogPrompts {
		return
	}
	dm.logger.Debug("prompt", "label", label, "text", text)
	if dm.options.SaveToFile {
		dm.saveToFile(fmt.Sprintf("prompt_%s", label), text)
	}
}

// LogResponse records an incoming response if response logging is
// enabled.
func (dm *DebugManager) LogResponse(label, text string) {
	if dm == nil || !dm.options.Enabled || !dm.options.LogResponses {
		return
	}
	dm.logger.Debug("response", "label", label, "text", text)
	if dm.options.SaveToFile {
		dm.saveToFile(fmt.Sprintf("response_%s", label), text)
	}
}

func (dm *DebugManager) saveToFile(name, content string) {
	path := filepath.Join(dm.outputDir, fmt.Sprintf("%s_%s.txt", name, time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		dm.logger.Error("failed to write debug output", "error", err, "file", path)
	}
}

// IsEnabled reports whether debugging is active.
func (dm *DebugManager) IsEnabled() bool {
	return dm != nil && dm.options.Enabled
}
