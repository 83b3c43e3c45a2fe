package server

import "net/http"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Audit actions (start/run/status/cancel) share one endpoint
	mux.HandleFunc("/api/audit", s.app.AuditHandler.AuditHandler)

	// Report download: /api/audit/{jobId}/report.pdf
	mux.HandleFunc("/api/audit/", s.app.AuditHandler.ReportPDFHandler)

	// System
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	return mux
}
