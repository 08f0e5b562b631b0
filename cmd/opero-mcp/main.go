package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/opero/internal/app"
	"github.com/ternarybob/opero/internal/common"
)

func main() {
	configPath := os.Getenv("OPERO_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("opero.toml"); err == nil {
			configPath = "opero.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal console logger at warn level; stdout carries the MCP protocol
	// so startup chatter must stay off it
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	// Same wiring as the HTTP binary: storage, queue, processors, tools.
	// Jobs submitted over MCP run in this process.
	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start job queue")
	}

	mcpServer := server.NewMCPServer(
		"opero",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Queue tools
	mcpServer.AddTool(createSubmitBatchTool(), handleSubmitBatch(application.Queue, logger))
	mcpServer.AddTool(createGetJobTool(), handleGetJob(application.Queue, logger))
	mcpServer.AddTool(createListJobsTool(), handleListJobs(application.Queue, logger))
	mcpServer.AddTool(createCancelJobTool(), handleCancelJob(application.Queue, logger))
	mcpServer.AddTool(createQueueStatsTool(), handleQueueStats(application.Queue, logger))
	mcpServer.AddTool(createGetJobLogsTool(), handleGetJobLogs(application.Queue, application.StorageManager.JobLogStorage(), logger))

	// Local tool-layer tools
	mcpServer.AddTool(createReadFileTool(), handleLocalTool(application.Tools, "read_file", logger))
	mcpServer.AddTool(createWriteFileTool(), handleLocalTool(application.Tools, "write_file", logger))
	mcpServer.AddTool(createListDirectoryTool(), handleLocalTool(application.Tools, "list_directory", logger))
	mcpServer.AddTool(createRunCommandTool(), handleLocalTool(application.Tools, "run_command", logger))

	// Blocks on stdio
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
