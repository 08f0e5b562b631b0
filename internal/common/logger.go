package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

// consoleWriterConfig is shared by every console writer so the two
// binaries log in the same format
func consoleWriterConfig() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
		TextOutput: true,
	}
}

// InitLogger builds the process logger from the logging config. Outputs
// are additive: "stdout" (or "console") attaches a console writer and
// "file" a rotating file writer under logs/ next to the executable. A
// failure to set up the file writer degrades to console only rather
// than failing startup.
func InitLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()

	toStdout := false
	toFile := false
	for _, output := range config.Logging.Output {
		switch output {
		case "stdout", "console":
			toStdout = true
		case "file":
			toFile = true
		}
	}

	if toFile {
		logFile, err := logFilePath()
		if err != nil {
			fmt.Printf("Warning: file logging disabled: %v\n", err)
			toStdout = true
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   logFile,
				TimeFormat: "15:04:05",
				MaxSize:    100 * 1024 * 1024,
				MaxBackups: 3,
				TextOutput: true,
			})
		}
	}
	if toStdout {
		logger = logger.WithConsoleWriter(consoleWriterConfig())
	}

	return logger.WithLevelFromString(config.Logging.Level)
}

// logFilePath resolves logs/opero.log next to the executable, creating
// the directory on first use
func logFilePath() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable path: %w", err)
	}
	logsDir := filepath.Join(filepath.Dir(execPath), "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return filepath.Join(logsDir, "opero.log"), nil
}
