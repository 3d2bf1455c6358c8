package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"statement_report/pkg/core/chat"
	"statement_report/pkg/core/derive"
	"statement_report/pkg/core/extract"
	"statement_report/pkg/core/ingest"
	"statement_report/pkg/core/pipeline"
	"statement_report/pkg/core/store"
	"statement_report/pkg/models"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockExtractor struct {
	ExtractFunc func(ctx context.Context, doc ingest.Document) (models.FinancialRecord, error)
	Calls       int
}

func (m *MockExtractor) Extract(ctx context.Context, doc ingest.Document) (models.FinancialRecord, error) {
	m.Calls++
	return m.ExtractFunc(ctx, doc)
}

type MockNarrator struct{}

func (MockNarrator) Narrate(ctx context.Context, d derive.Derivation) models.NarrativeSet {
	texts := map[models.Section]string{}
	for _, s := range models.Sections {
		texts[s] = "text"
	}
	return models.NewNarrativeSet(texts, nil)
}

type MockReplier struct {
	ReplyFunc func(ctx context.Context, history []chat.Message, report *models.ReportResult) (string, error)
}

func (m *MockReplier) Reply(ctx context.Context, history []chat.Message, report *models.ReportResult) (string, error) {
	return m.ReplyFunc(ctx, history, report)
}

type fixture struct {
	router    *gin.Engine
	extractor *MockExtractor
	replier   *MockReplier
	repo      *store.ReportRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo, err := store.NewReportRepo(nil, t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		extractor: &MockExtractor{ExtractFunc: func(ctx context.Context, doc ingest.Document) (models.FinancialRecord, error) {
			rec := models.EmptyRecord()
			rec.CompanyName = "Acme Corp"
			rec.BalanceSheet.CurrentAssets = models.Value(500)
			rec.BalanceSheet.CurrentLiabilities = models.Value(250)
			return rec, nil
		}},
		replier: &MockReplier{ReplyFunc: func(ctx context.Context, history []chat.Message, report *models.ReportResult) (string, error) {
			if report != nil {
				return "About " + report.Record().CompanyName, nil
			}
			return "No report", nil
		}},
		repo: repo,
	}
	o := pipeline.NewOrchestrator(f.extractor, MockNarrator{}, pipeline.WithRepository(repo))

	f.router = gin.New()
	NewHandler(o, f.replier, repo, 1<<20, nil).Register(f.router.Group("/api"))
	return f
}

func upload(t *testing.T, router http.Handler, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/reports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateReport_AssemblesAndStores(t *testing.T) {
	f := newFixture(t)
	rec := upload(t, f.router, "acme.csv", "text/csv", []byte("item,amount\nsales,1000\n"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "assembled", body["state"])
	id := body["id"].(string)
	report := body["report"].(map[string]interface{})
	ratios := report["calculated_ratios"].(map[string]interface{})
	current := ratios["current_ratio"].(map[string]interface{})
	assert.Equal(t, 2.0, current["ratio_value"])
	assert.Equal(t, "text", report["key_findings"])

	get := httptest.NewRecorder()
	f.router.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/reports/"+id, nil))
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "acme.csv", decode(t, get)["document_name"])

	list := httptest.NewRecorder()
	f.router.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/reports?limit=5", nil))
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode(t, list)["reports"], 1)
}

func TestCreateReport_UnsupportedType(t *testing.T) {
	f := newFixture(t)
	rec := upload(t, f.router, "bundle.zip", "application/zip", []byte("PK\x03\x04"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Zero(t, f.extractor.Calls)
	assert.Contains(t, decode(t, rec)["supported"], "application/pdf")
}

func TestCreateReport_ExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.extractor.ExtractFunc = func(ctx context.Context, doc ingest.Document) (models.FinancialRecord, error) {
		return models.FinancialRecord{}, &extract.ExtractionError{Kind: extract.KindPermanent, Cause: extract.ErrDocumentUnreadable}
	}
	rec := upload(t, f.router, "acme.pdf", "application/pdf", []byte("%PDF-1.4 garbage"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "failed", decode(t, rec)["state"])
}

func TestCreateReport_MissingFile(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reports", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReport_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func postChat(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	f := newFixture(t)
	created := upload(t, f.router, "acme.csv", "text/csv", []byte("item,amount\nsales,1000\n"))
	require.Equal(t, http.StatusCreated, created.Code)
	id := decode(t, created)["id"].(string)

	rec := postChat(f.router, `{"messages":[{"role":"user","content":"Summarize"}],"report_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "About Acme Corp", decode(t, rec)["reply"])

	rec = postChat(f.router, `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No report", decode(t, rec)["reply"])

	assert.Equal(t, http.StatusBadRequest, postChat(f.router, `{"messages":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, postChat(f.router, `{"messages":[{"role":"system","content":"x"}]}`).Code)
	assert.Equal(t, http.StatusNotFound, postChat(f.router, `{"messages":[{"role":"user","content":"x"}],"report_id":"nope"}`).Code)

	f.replier.ReplyFunc = func(ctx context.Context, history []chat.Message, report *models.ReportResult) (string, error) {
		return "", chat.ErrLastNotFromUser
	}
	assert.Equal(t, http.StatusBadRequest, postChat(f.router, `{"messages":[{"role":"assistant","content":"x"}]}`).Code)

	f.replier.ReplyFunc = func(ctx context.Context, history []chat.Message, report *models.ReportResult) (string, error) {
		return "", errors.New("503")
	}
	assert.Equal(t, http.StatusBadGateway, postChat(f.router, `{"messages":[{"role":"user","content":"x"}]}`).Code)
}
