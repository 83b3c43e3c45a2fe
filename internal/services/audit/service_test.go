package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// ---------------------------------------------------------------------
// In-memory doubles
// ---------------------------------------------------------------------

type memStore struct {
	mu    sync.Mutex
	jobs  map[string]models.AuditJob
	files map[string]models.AuditFile
	docs  []models.Document
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		jobs:  make(map[string]models.AuditJob),
		files: make(map[string]models.AuditFile),
		blobs: make(map[string][]byte),
	}
}

func (m *memStore) JobStorage() interfaces.JobStorage           { return m }
func (m *memStore) FileStorage() interfaces.FileStorage         { return m }
func (m *memStore) DocumentStorage() interfaces.DocumentStorage { return m }
func (m *memStore) BlobStorage() interfaces.BlobStorage         { return m }
func (m *memStore) Close() error                                { return nil }

func (m *memStore) SaveJob(_ context.Context, job *models.AuditJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memStore) GetJob(_ context.Context, jobID string) (*models.AuditJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	copied := job
	return &copied, nil
}

func (m *memStore) ListJobsByStatus(_ context.Context, statuses ...models.JobStatus) ([]*models.AuditJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.AuditJob
	for _, job := range m.jobs {
		for _, status := range statuses {
			if job.Status == status {
				copied := job
				result = append(result, &copied)
			}
		}
	}
	return result, nil
}

func (m *memStore) SaveFile(_ context.Context, file *models.AuditFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file.ID] = *file
	return nil
}

func (m *memStore) SaveFiles(ctx context.Context, files []*models.AuditFile) error {
	for _, file := range files {
		if err := m.SaveFile(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) GetFile(_ context.Context, fileID string) (*models.AuditFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", fileID)
	}
	copied := file
	return &copied, nil
}

func (m *memStore) ListFiles(_ context.Context, jobID string) ([]*models.AuditFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.AuditFile
	for _, file := range m.files {
		if file.JobID == jobID {
			copied := file
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (m *memStore) ListFilesByStatus(ctx context.Context, jobID string, status models.FileStatus) ([]*models.AuditFile, error) {
	all, err := m.ListFiles(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var result []*models.AuditFile
	for _, file := range all {
		if file.Status == status {
			result = append(result, file)
		}
	}
	return result, nil
}

func (m *memStore) CountTerminal(ctx context.Context, jobID string) (int, error) {
	all, err := m.ListFiles(ctx, jobID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, file := range all {
		if file.IsTerminal() {
			count++
		}
	}
	return count, nil
}

func (m *memStore) SaveDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, *doc)
	return nil
}

func (m *memStore) ListByCollection(_ context.Context, collectionID string) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Document
	for i := range m.docs {
		if m.docs[i].CollectionID == collectionID {
			copied := m.docs[i]
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *memStore) Upload(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = data
	return nil
}

func (m *memStore) Download(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", path)
	}
	return data, nil
}

func (m *memStore) SaveManifest(_ context.Context, _ *models.ChunkManifest) error { return nil }
func (m *memStore) GetManifest(_ context.Context, path string) (*models.ChunkManifest, error) {
	return nil, fmt.Errorf("manifest not found: %s", path)
}

// blobRetriever resolves files straight from the blob map
type blobRetriever struct{ store *memStore }

func (r *blobRetriever) Resolve(ctx context.Context, file *models.AuditFile) ([]byte, error) {
	return r.store.Download(ctx, file.StoragePath)
}

// stubExtractor wraps the whole payload in a single snippet. A delay can
// be injected to trip the per-file timeout.
type stubExtractor struct {
	delay time.Duration
}

func (e *stubExtractor) Extract(ctx context.Context, fileName, contentType string, data []byte) ([]models.Snippet, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []models.Snippet{models.NewSnippet("s1", "body", text)}, nil
}

// scriptedLLM answers the per-file and synthesis prompts with canned
// responses, telling them apart by the system instruction
type scriptedLLM struct {
	mu                sync.Mutex
	factsResponse     func(userPrompt string) string
	synthesisResponse string
	factsErr          error
	synthesisErr      error
	factsCalls        int
	synthesisCalls    int
}

func (l *scriptedLLM) Chat(_ context.Context, messages []interfaces.Message) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	system := messages[0].Content
	if strings.Contains(system, "final findings report") {
		l.synthesisCalls++
		if l.synthesisErr != nil {
			return "", l.synthesisErr
		}
		return l.synthesisResponse, nil
	}
	l.factsCalls++
	if l.factsErr != nil {
		return "", l.factsErr
	}
	return l.factsResponse(messages[1].Content), nil
}

func (l *scriptedLLM) HealthCheck(context.Context) error { return nil }
func (l *scriptedLLM) Close() error                      { return nil }

// ---------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------

const testCollection = "col_test"

func testConfig() *common.AuditConfig {
	return &common.AuditConfig{
		MaxFilesPerBatch: 5,
		FileTimeout:      "5s",
		StaleGrace:       "1s",
		MaxRetries:       0,
		InitialBackoff:   "1ms",
	}
}

// factsQuoting builds a facts response that cites s1 with a quote taken
// verbatim from the snippet in the prompt
func factsQuoting(quote string) func(string) string {
	return func(string) string {
		return fmt.Sprintf(`{
			"document_type": "invoice",
			"summary": "An invoice.",
			"facts": [{"key": "total", "value": "500", "citations": [{"snippet_id": "s1", "quote": %q}]}],
			"internal_red_flags": []
		}`, quote)
	}
}

func synthesisCiting(snippetID, quote string) string {
	return fmt.Sprintf(`{
		"overview": "Reviewed all documents.",
		"findings": [{"title": "Total confirmed", "description": "Amounts agree.", "severity": "low", "confidence": 90, "citations": [{"snippet_id": %q, "quote": %q}]}],
		"risk_score": 20
	}`, snippetID, quote)
}

type fixture struct {
	store   *memStore
	llm     *scriptedLLM
	service *Service
}

func newFixture(t *testing.T, llm *scriptedLLM, cfg *common.AuditConfig, extractor interfaces.EvidenceExtractor) *fixture {
	t.Helper()
	store := newMemStore()
	if cfg == nil {
		cfg = testConfig()
	}
	if extractor == nil {
		extractor = &stubExtractor{}
	}
	service := NewService(store, &blobRetriever{store: store}, extractor, llm, nil, cfg, arbor.NewLogger())
	return &fixture{store: store, llm: llm, service: service}
}

func (f *fixture) seedDocs(t *testing.T, contents ...string) {
	t.Helper()
	ctx := context.Background()
	for i, content := range contents {
		path := fmt.Sprintf("docs/file%d.txt", i+1)
		require.NoError(t, f.store.Upload(ctx, path, []byte(content)))
		require.NoError(t, f.store.SaveDocument(ctx, &models.Document{
			ID:           fmt.Sprintf("doc_%d", i+1),
			CollectionID: testCollection,
			Name:         fmt.Sprintf("file%d.txt", i+1),
			StoragePath:  path,
			ContentType:  "text/plain",
			UploadedAt:   time.Now().UTC(),
		}))
	}
}

// ---------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------

func TestStartSnapshotsCollection(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, nil, nil)
	f.seedDocs(t, "one", "two", "three")

	job, err := f.service.Start(context.Background(), testCollection, "tester")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 3, job.TotalFiles)
	assert.Equal(t, 0, job.ProcessedFiles)

	files, err := f.store.ListFiles(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, file := range files {
		assert.Equal(t, models.FileStatusPending, file.Status)
		assert.Equal(t, i, file.Position)
	}
}

func TestStartRequiresCollectionID(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, nil, nil)

	_, err := f.service.Start(context.Background(), "", "tester")
	require.Error(t, err)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestRunProcessesBatchesAndSynthesizes(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse:     factsQuoting("one"),
		synthesisResponse: synthesisCiting("f1:s1", "one"),
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one", "two", "three")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)

	// First batch: two of three files
	job, err = f.service.Run(ctx, job.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 2, job.ProcessedFiles)
	assert.Equal(t, 60, job.Progress)
	assert.Empty(t, job.ReportMarkdown)
	assert.Equal(t, 0, llm.synthesisCalls)

	// Second batch finishes the file and triggers synthesis exactly once
	job, err = f.service.Run(ctx, job.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ProcessedFiles)
	assert.Equal(t, 100, job.Progress)
	assert.NotEmpty(t, job.ReportMarkdown)
	assert.Contains(t, job.ReportMarkdown, "Total confirmed")
	assert.Equal(t, 1, llm.synthesisCalls)
	assert.Equal(t, 3, llm.factsCalls)
}

func TestRunOnTerminalJobIsNoOp(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse:     factsQuoting("one"),
		synthesisResponse: synthesisCiting("f1:s1", "one"),
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)
	job, err = f.service.Run(ctx, job.ID, 5)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, job.Status)

	before := *job
	again, err := f.service.Run(ctx, job.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, before.Status, again.Status)
	assert.Equal(t, before.ReportMarkdown, again.ReportMarkdown)
	assert.Equal(t, 1, llm.synthesisCalls)
}

func TestFileTimeoutSkipsAndContinues(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse:     factsQuoting("two"),
		synthesisResponse: synthesisCiting("f2:s1", "two"),
	}
	cfg := testConfig()
	cfg.FileTimeout = "50ms"
	f := newFixture(t, llm, cfg, &stubExtractor{delay: 500 * time.Millisecond})
	f.seedDocs(t, "one")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)
	job, err = f.service.Run(ctx, job.ID, 1)
	require.NoError(t, err)

	files, err := f.store.ListFiles(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, models.FileStatusSkipped, files[0].Status)

	facts, err := files[0].Facts()
	require.NoError(t, err)
	assert.Contains(t, facts.Summary, "timed out")
	assert.Empty(t, facts.Facts)
}

func TestEmptyEvidenceSkipsWithoutLLMCall(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse:     factsQuoting("unused"),
		synthesisResponse: synthesisCiting("f1:s1", "unused"),
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "   ")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)
	job, err = f.service.Run(ctx, job.ID, 1)
	require.NoError(t, err)

	files, err := f.store.ListFiles(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusSkipped, files[0].Status)
	assert.Equal(t, 0, llm.factsCalls)

	facts, err := files[0].Facts()
	require.NoError(t, err)
	assert.Empty(t, facts.Facts)
}

func TestFileFailureNeverFailsJob(t *testing.T) {
	llm := &scriptedLLM{
		factsErr:          fmt.Errorf("invalid api key"),
		synthesisResponse: `{"overview": "Nothing usable.", "findings": [], "risk_score": null}`,
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one", "two")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)
	job, err = f.service.Run(ctx, job.ID, 5)
	require.NoError(t, err)

	// Both files failed, yet the job completed through synthesis
	files, err := f.store.ListFiles(ctx, job.ID)
	require.NoError(t, err)
	for _, file := range files {
		assert.Equal(t, models.FileStatusFailed, file.Status)
		assert.Contains(t, file.Error, "invalid api key")
	}
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestSynthesisFailureFailsJob(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse: factsQuoting("one"),
		synthesisErr:  fmt.Errorf("model overloaded"),
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)
	job, err = f.service.Run(ctx, job.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Empty(t, job.ReportMarkdown)
	assert.Contains(t, job.Error, "synthesis")
	assert.Equal(t, 1, job.ProcessedFiles)
}

func TestEmptyCollectionCompletesWithPlaceholderReport(t *testing.T) {
	llm := &scriptedLLM{}
	f := newFixture(t, llm, nil, nil)
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)
	assert.Equal(t, 0, job.TotalFiles)

	job, err = f.service.Run(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Contains(t, job.ReportMarkdown, "No documents")
	assert.Equal(t, 0, llm.synthesisCalls)
}

func TestCancelTransitions(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse:     factsQuoting("one"),
		synthesisResponse: synthesisCiting("f1:s1", "one"),
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)

	cancelled, err := f.service.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	assert.Equal(t, "Cancelled by user", cancelled.Error)

	// A cancelled job never resumes
	after, err := f.service.Run(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, after.Status)
	assert.Equal(t, 0, llm.factsCalls)

	// Cancelling a terminal job is a state error
	_, err = f.service.Cancel(ctx, job.ID)
	require.Error(t, err)
	var sErr *StateError
	assert.ErrorAs(t, err, &sErr)
}

func TestRunRecountsTerminalFilesAfterCrash(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse:     factsQuoting("one"),
		synthesisResponse: synthesisCiting("f1:s1", "one"),
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)

	// Simulate a crash between the file save and the job progress save:
	// the file is terminal but the job record still says nothing finished
	files, err := f.store.ListFiles(ctx, job.ID)
	require.NoError(t, err)
	files[0].MarkDone(
		`{"document_type":"invoice","summary":"An invoice.","facts":[],"internal_red_flags":[]}`,
		`[{"id":"s1","location":"body","text":"one"}]`,
	)
	require.NoError(t, f.store.SaveFile(ctx, files[0]))

	stored, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	stored.MarkStarted()
	require.NoError(t, f.store.SaveJob(ctx, stored))

	// The next invocation claims nothing pending, yet must still notice
	// every file is terminal and finish the job
	job, err = f.service.Run(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.ProcessedFiles)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 1, llm.synthesisCalls)
	assert.Equal(t, 0, llm.factsCalls)
}

func TestCancelDuringBatchIsNeverOverwritten(t *testing.T) {
	llm := &scriptedLLM{synthesisResponse: synthesisCiting("f1:s1", "one")}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one", "two")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)

	// The cancel lands while the first file is still in flight
	var cancelErr error
	llm.factsResponse = func(string) string {
		_, cancelErr = f.service.Cancel(ctx, job.ID)
		return factsQuoting("one")("")
	}

	after, err := f.service.Run(ctx, job.ID, 5)
	require.NoError(t, err)
	require.NoError(t, cancelErr)

	// The batch finishes its current file, then stops for good
	assert.Equal(t, models.JobStatusCancelled, after.Status)
	assert.Equal(t, "Cancelled by user", after.Error)
	assert.Equal(t, 1, llm.factsCalls)

	stored, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)

	again, err := f.service.Run(ctx, job.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, again.Status)
	assert.Equal(t, 1, llm.factsCalls)
	assert.Equal(t, 0, llm.synthesisCalls)
}

func TestStaleProcessingFileIsReclaimed(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse:     factsQuoting("one"),
		synthesisResponse: synthesisCiting("f1:s1", "one"),
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)

	// Simulate a crashed invocation: file stuck in processing, long ago
	files, err := f.store.ListFiles(ctx, job.ID)
	require.NoError(t, err)
	files[0].Status = models.FileStatusProcessing
	files[0].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.store.SaveFile(ctx, files[0]))

	job, err = f.service.Run(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.ProcessedFiles)
}

func TestProgressMonotonicAndBounded(t *testing.T) {
	llm := &scriptedLLM{
		factsResponse:     factsQuoting("one"),
		synthesisResponse: synthesisCiting("f1:s1", "one"),
	}
	f := newFixture(t, llm, nil, nil)
	f.seedDocs(t, "one", "two", "three", "four")
	ctx := context.Background()

	job, err := f.service.Start(ctx, testCollection, "tester")
	require.NoError(t, err)

	last := 0
	for i := 0; i < 4; i++ {
		job, err = f.service.Run(ctx, job.ID, 1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, job.Progress, last)
		assert.LessOrEqual(t, job.ProcessedFiles, job.TotalFiles)
		last = job.Progress
	}
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
}
