package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/projectvak/contracthub/internal/contractservice"
	"github.com/projectvak/contracthub/internal/crm"
	"github.com/projectvak/contracthub/internal/index"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/push"
	"github.com/projectvak/contracthub/internal/status"
	"github.com/projectvak/contracthub/internal/testutil"
)

type stubTarget struct {
	fail bool
}

func (s *stubTarget) Push(context.Context, crm.Payload) (crm.Receipt, error) {
	if s.fail {
		return crm.Receipt{}, errors.New("crm rejected")
	}
	return crm.Receipt{ID: "42"}, nil
}

// testEnv sets up a temp contract store, SQLite index, service and router.
// A nil target leaves push unconfigured.
func testEnv(t *testing.T, target push.Target, recs ...*models.ContractRecord) (http.Handler, *index.DB) {
	t.Helper()
	dir, store := testutil.TestStore(t)
	for _, r := range recs {
		testutil.WriteContract(t, dir, r)
	}
	db := testutil.TestDB(t)

	cfg := contractservice.Config{Store: store, Index: db, Logger: testutil.Logger()}
	if target != nil {
		cfg.Pusher = push.New(store, target, testutil.Logger())
	}
	return NewRouter(contractservice.New(cfg), nil), db
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestListContracts(t *testing.T) {
	router, _ := testEnv(t, nil,
		testutil.Contract("a.json", 97, "Meir 78"),
		testutil.Contract("b.json", 40, ""),
	)

	w := do(t, router, http.MethodGet, "/contracts", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ContractListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Contracts) != 2 {
		t.Fatalf("unexpected listing: %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/contracts?status=error", nil, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Contracts[0].Filename != "b.json" || resp.Contracts[0].Status != status.Error {
		t.Errorf("unexpected filtered listing: %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/contracts?status=bogus", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus filter = %d, want 400", w.Code)
	}
}

func TestGetContract(t *testing.T) {
	router, _ := testEnv(t, nil, testutil.Contract("data_Meir 78_20250125_123456.json", 97, "Meir 78"))

	w := do(t, router, http.MethodGet, "/contracts/data_Meir%2078_20250125_123456.json", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") == "" {
		t.Error("missing ETag")
	}
	var d struct {
		Filename string        `json:"filename"`
		Status   status.Status `json:"status"`
		Checksum string        `json:"checksum"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Status != status.Parsed || d.Checksum == "" || d.Filename != "data_Meir 78_20250125_123456.json" {
		t.Errorf("unexpected detail: %+v", d)
	}

	if w := do(t, router, http.MethodGet, "/contracts/missing.json", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/contracts/notes.txt", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad filename = %d, want 400", w.Code)
	}
}

func TestUpdateContract_OptimisticLocking(t *testing.T) {
	rec := testutil.Contract("a.json", 80, "Meir 78")
	rec.ContractData.Set(models.MustFieldPath("financieel.huurprijs"), json.Number("950"))
	router, _ := testEnv(t, nil, rec)

	w := do(t, router, http.MethodGet, "/contracts/a.json", nil, nil)
	etag := w.Header().Get("ETag")

	body := []byte(`{"contract_data":{"financieel":{"huurprijs":1000}}}`)
	w = do(t, router, http.MethodPut, "/contracts/a.json", body, map[string]string{
		"If-Match": etag,
		"X-Editor": "ann@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Contract struct {
			Status   status.Status `json:"status"`
			Checksum string        `json:"checksum"`
		} `json:"contract"`
		Entry struct {
			Editor  string                    `json:"editor"`
			Changes map[string]map[string]any `json:"changes"`
		} `json:"edit_entry"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Entry.Editor != "ann@example.com" {
		t.Errorf("editor = %q", res.Entry.Editor)
	}
	if len(res.Entry.Changes) != 1 || res.Entry.Changes["financieel.huurprijs"] == nil {
		t.Errorf("changes = %v", res.Entry.Changes)
	}
	if res.Contract.Status != status.ManuallyEdited {
		t.Errorf("status = %q", res.Contract.Status)
	}

	// Reusing the old ETag must conflict.
	w = do(t, router, http.MethodPut, "/contracts/a.json", body, map[string]string{"If-Match": etag})
	if w.Code != http.StatusConflict {
		t.Errorf("stale update = %d, want 409", w.Code)
	}
}

func TestUpdateContract_Validation(t *testing.T) {
	router, _ := testEnv(t, nil, testutil.Contract("a.json", 80, ""))

	cases := map[string]string{
		"malformed json":      `{"contract_data":`,
		"missing data":        `{"confidence":50}`,
		"confidence too high": `{"contract_data":{"x":{"y":1}},"confidence":101}`,
	}
	for name, body := range cases {
		w := do(t, router, http.MethodPut, "/contracts/a.json", []byte(body), nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}

	w := do(t, router, http.MethodPut, "/contracts/missing.json", []byte(`{"contract_data":{"x":{"y":1}}}`), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
}

func TestLinkContract(t *testing.T) {
	router, db := testEnv(t, nil, testutil.Contract("data_Meir_78_20250125_123456.json", 97, "Meir 78"))
	row := index.RowFromFile(models.FileMetadata{Path: "Scans/Meir 78.pdf", Size: 3, UpdatedAt: time.Now()})
	if err := db.Upsert(context.Background(), row); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodPost, "/contracts/data_Meir_78_20250125_123456.json/link", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("link = %d, body = %s", w.Code, w.Body.String())
	}
	var res LinkResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Linked || res.Match.Path != "/Scans/Meir 78.pdf" {
		t.Errorf("unexpected link result: %+v", res)
	}
}

func TestPushAndSweep(t *testing.T) {
	target := &stubTarget{}
	router, _ := testEnv(t, target,
		testutil.Contract("a.json", 97, ""),
		testutil.Contract("b.json", 20, ""),
	)

	w := do(t, router, http.MethodPost, "/sweep", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep = %d, body = %s", w.Code, w.Body.String())
	}
	var sweep SweepResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sweep)
	if sweep.PushedCount != 1 || sweep.PushedFilenames[0] != "a.json" {
		t.Errorf("unexpected sweep: %+v", sweep)
	}

	w = do(t, router, http.MethodPost, "/contracts/b.json/push", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("push = %d, body = %s", w.Code, w.Body.String())
	}

	target.fail = true
	w = do(t, router, http.MethodPost, "/contracts/a.json/push", nil, nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("failed push = %d, want 502", w.Code)
	}
}

func TestPushNotConfigured(t *testing.T) {
	router, _ := testEnv(t, nil, testutil.Contract("a.json", 97, ""))

	if w := do(t, router, http.MethodPost, "/sweep", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("sweep = %d, want 503", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/contracts/a.json/push", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("push = %d, want 503", w.Code)
	}
}

func TestProperties(t *testing.T) {
	router, _ := testEnv(t, nil,
		testutil.Contract("a.json", 97, "Meir 78"),
		testutil.Contract("b.json", 65, "Meir 78"),
	)
	w := do(t, router, http.MethodGet, "/properties", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("properties = %d", w.Code)
	}
	var resp PropertyListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Properties) != 1 || resp.Properties[0].Status != status.NeedsReview {
		t.Errorf("unexpected rollup: %+v", resp)
	}
}

func TestSearchDocuments(t *testing.T) {
	router, db := testEnv(t, nil)
	for _, p := range []string{"Scans/Meir 78.pdf", "Scans/Kerkstraat 5.pdf"} {
		row := index.RowFromFile(models.FileMetadata{Path: p, Size: 1, UpdatedAt: time.Now()})
		if err := db.Upsert(context.Background(), row); err != nil {
			t.Fatal(err)
		}
	}

	w := do(t, router, http.MethodGet, "/documents/search?q=meir", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp DocumentSearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Name != "Meir 78.pdf" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}

	for _, q := range []string{"/documents/search", "/documents/search?q=x&limit=abc", "/documents/search?q=x&field=body"} {
		if w := do(t, router, http.MethodGet, q, nil, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", q, w.Code)
		}
	}
}

func TestEditorMiddleware(t *testing.T) {
	var got string
	h := EditorMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = editorFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(EditorHeader, "  bob ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "bob" {
		t.Errorf("editor = %q", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "" {
		t.Errorf("editor = %q, want empty", got)
	}
}
