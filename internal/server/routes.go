package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/opero/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Batch submission
	mux.HandleFunc("/api/batch/agent-tasks", s.app.BatchHandler.AgentTasksHandler)
	mux.HandleFunc("/api/batch/validation", s.app.BatchHandler.ValidationHandler)
	mux.HandleFunc("/api/batch/tests", s.app.BatchHandler.TestsHandler)
	mux.HandleFunc("/api/batch/mcp-operations", s.app.BatchHandler.MCPOperationsHandler)

	// API routes - Job management
	mux.HandleFunc("/api/batch/stats", s.app.JobHandler.StatsHandler)
	mux.HandleFunc("/api/batch/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/batch/jobs/", s.handleJobRoutes)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleJobsRoute routes /api/batch/jobs (collection) requests
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.JobHandler.ListJobsHandler(w, r)
	default:
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleJobRoutes routes /api/batch/jobs/{id} and its subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if r.Method == "GET" {
		if strings.HasSuffix(path, "/logs") {
			s.app.JobHandler.LogsHandler(w, r)
			return
		}
		if strings.HasSuffix(path, "/report") {
			s.app.JobHandler.ReportHandler(w, r)
			return
		}
		s.app.JobHandler.GetJobHandler(w, r)
		return
	}

	if r.Method == "DELETE" {
		s.app.JobHandler.CancelJobHandler(w, r)
		return
	}

	handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// notFoundHandler returns the uniform error body for unmatched API routes
func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, http.StatusNotFound, "Not found")
}
