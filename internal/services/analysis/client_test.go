package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
)

func TestAnalyzePostsPayloadAndDecodesResult(t *testing.T) {
	var gotAuth string
	var gotPayload interfaces.AnalysisPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"analysis": "Two invoices disagree on totals.", "riskScore": 65, "filesAnalyzed": 2}`))
	}))
	defer server.Close()

	client := NewClient(&common.AnalysisConfig{
		Enabled:  true,
		Endpoint: server.URL,
		APIKey:   "secret",
		Timeout:  "5s",
	}, arbor.NewLogger())

	result, err := client.Analyze(context.Background(), &interfaces.AnalysisPayload{
		JobID: "job_1",
		Files: []interfaces.AnalysisFilePayload{
			{FileName: "a.pdf", DocumentType: "invoice", Summary: "Invoice A"},
			{FileName: "b.pdf", DocumentType: "invoice", Summary: "Invoice B"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "job_1", gotPayload.JobID)
	assert.Len(t, gotPayload.Files, 2)
	assert.Equal(t, "Two invoices disagree on totals.", result.Analysis)
	require.NotNil(t, result.RiskScore)
	assert.Equal(t, float64(65), *result.RiskScore)
	assert.Equal(t, 2, result.FilesAnalyzed)
}

func TestAnalyzeNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(&common.AnalysisConfig{
		Enabled:  true,
		Endpoint: server.URL,
		Timeout:  "5s",
	}, arbor.NewLogger())

	_, err := client.Analyze(context.Background(), &interfaces.AnalysisPayload{JobID: "job_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestDisabledClient(t *testing.T) {
	client := NewClient(&common.AnalysisConfig{}, arbor.NewLogger())
	assert.False(t, client.Enabled())

	_, err := client.Analyze(context.Background(), &interfaces.AnalysisPayload{})
	require.Error(t, err)
}
