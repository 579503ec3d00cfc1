package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/admitcast/internal/adapters/http/api"
	"github.com/okian/admitcast/internal/domain/institution"
	"github.com/okian/admitcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies records the last request and replays canned results.
type mockDependencies struct {
	forecastReq model.ForecastRequest
	forecast    model.ForecastResult
	forecastErr error

	documentReq model.DocumentRequest
	document    model.DocumentEvaluation
	documentErr error

	query string
	list  []institution.Institution
}

func (m *mockDependencies) Forecast(_ context.Context, req model.ForecastRequest) (model.ForecastResult, error) {
	m.forecastReq = req
	return m.forecast, m.forecastErr
}

func (m *mockDependencies) ScoreDocument(_ context.Context, req model.DocumentRequest) (model.DocumentEvaluation, error) {
	m.documentReq = req
	return m.document, m.documentErr
}

func (m *mockDependencies) Institutions(_ context.Context, query string) []institution.Institution {
	m.query = query
	return m.list
}

func (m *mockDependencies) Institution(_ context.Context, id int) (institution.Institution, error) {
	for _, inst := range m.list {
		if inst.ID == id {
			return inst, nil
		}
	}
	return institution.Institution{}, institution.ErrNotFound
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) http.Handler {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return api.RequestIDMiddleware(mux)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body
}

const forecastBody = `{"institutionId":1,"standardizedTestScore":320,"englishTestFamily":"A",
"englishTestScore":7.5,"workExperienceMonths":24,"publicationCount":2,"sopScore":8,"lorScore":9}`

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		h := newMux(&mockDependencies{})

		Convey("Then health serves Prometheus metrics", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And stats are served as JSON", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("And every response carries a request id", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
		})

		Convey("And an incoming request id is propagated", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "abc-123")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
		})

		Convey("And wrong methods are not found", func() {
			So(do(h, http.MethodGet, "/forecasts", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodPut, "/institutions", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestForecastHandler(t *testing.T) {
	Convey("Given the forecast endpoint", t, func() {
		deps := &mockDependencies{forecast: model.ForecastResult{
			RequestID:        "r-1",
			Probability:      0.72,
			ModelProbability: 0.6,
			TrainingRecords:  []model.TrainingRecord{{StandardizedTestScore: 320, Label: 1}},
		}}
		h := newMux(deps)

		Convey("When posting a valid request", func() {
			w := do(h, http.MethodPost, "/forecasts", forecastBody)

			Convey("Then the result is returned in camelCase JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["probability"], ShouldEqual, 0.72)
				So(body["modelProbability"], ShouldEqual, 0.6)
				So(body["requestId"], ShouldEqual, "r-1")
				So(body["trainingRecords"], ShouldHaveLength, 1)
			})

			Convey("And the request fields reach the service", func() {
				So(*deps.forecastReq.InstitutionID, ShouldEqual, 1)
				So(*deps.forecastReq.EnglishTestScore, ShouldEqual, 7.5)
				So(deps.forecastReq.EnglishTestFamily, ShouldEqual, "A")
			})
		})

		Convey("When the body is malformed", func() {
			w := do(h, http.MethodPost, "/forecasts", `{"institutionId":`)

			Convey("Then 400 bad_request is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When a field has the wrong type", func() {
			w := do(h, http.MethodPost, "/forecasts", `{"institutionId":"one"}`)

			Convey("Then 400 bad_request is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the service rejects the request", func() {
			deps.forecastErr = &model.ValidationError{Field: "sopScore", Reason: "is required"}
			w := do(h, http.MethodPost, "/forecasts", forecastBody)

			Convey("Then 400 validation_failed names the field", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeError(w)
				So(body["code"], ShouldEqual, "validation_failed")
				So(body["error"], ShouldContainSubstring, "sopScore")
			})
		})

		Convey("When the cohort is empty", func() {
			deps.forecastErr = &model.NoHistoricalDataError{InstitutionID: 7, EnglishField: "ielts_score"}
			w := do(h, http.MethodPost, "/forecasts", forecastBody)

			Convey("Then 500 no_historical_data is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["code"], ShouldEqual, "no_historical_data")
			})
		})

		Convey("When normalization is degenerate", func() {
			deps.forecastErr = &model.DegenerateNormalizationError{InstitutionID: 1, Feature: "publicationCount"}
			w := do(h, http.MethodPost, "/forecasts", forecastBody)

			Convey("Then 500 degenerate_normalization is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["code"], ShouldEqual, "degenerate_normalization")
			})
		})

		Convey("When the deadline passes", func() {
			deps.forecastErr = context.DeadlineExceeded
			w := do(h, http.MethodPost, "/forecasts", forecastBody)

			Convey("Then 504 timeout is returned", func() {
				So(w.Code, ShouldEqual, http.StatusGatewayTimeout)
				So(decodeError(w)["code"], ShouldEqual, "timeout")
			})
		})

		Convey("When the store fails", func() {
			deps.forecastErr = errors.New("connection refused")
			w := do(h, http.MethodPost, "/forecasts", forecastBody)

			Convey("Then 500 internal_error is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["code"], ShouldEqual, "internal_error")
			})
		})
	})
}

func TestDocumentHandler(t *testing.T) {
	Convey("Given the document scoring endpoint", t, func() {
		deps := &mockDependencies{document: model.DocumentEvaluation{
			Score:     7.4,
			Feedback:  []string{"Good"},
			WordCount: 512,
		}}
		h := newMux(deps)

		Convey("When posting a document", func() {
			w := do(h, http.MethodPost, "/documents/score", `{"document":"text","institutionId":2,"documentType":"SOP"}`)

			Convey("Then the evaluation is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var ev model.DocumentEvaluation
				So(json.Unmarshal(w.Body.Bytes(), &ev), ShouldBeNil)
				So(ev.Score, ShouldEqual, 7.4)
				So(ev.WordCount, ShouldEqual, 512)
				So(deps.documentReq.DocumentType, ShouldEqual, "SOP")
				So(*deps.documentReq.InstitutionID, ShouldEqual, 2)
			})
		})

		Convey("When the document is missing", func() {
			deps.documentErr = &model.ValidationError{Field: "document", Reason: "is required"}
			w := do(h, http.MethodPost, "/documents/score", `{"institutionId":2,"documentType":"SOP"}`)

			Convey("Then 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "validation_failed")
			})
		})

		Convey("When the body has trailing data", func() {
			w := do(h, http.MethodPost, "/documents/score", `{"document":"a"} {"document":"b"}`)

			Convey("Then 400 bad_request is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
			})
		})
	})
}

func TestInstitutionHandler(t *testing.T) {
	Convey("Given the institution endpoints", t, func() {
		deps := &mockDependencies{list: []institution.Institution{
			{ID: 2, Name: "MIT", GlobalRank: 1},
			{ID: 1, Name: "Stanford University", GlobalRank: 3},
		}}
		h := newMux(deps)

		Convey("When listing with a query", func() {
			w := do(h, http.MethodGet, "/institutions?q=stan", "")

			Convey("Then the query reaches the directory", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.query, ShouldEqual, "stan")
				So(w.Body.String(), ShouldContainSubstring, `"institutions":[`)
			})
		})

		Convey("When nothing matches", func() {
			deps.list = nil
			w := do(h, http.MethodGet, "/institutions?q=zzz", "")

			Convey("Then an empty array is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"institutions":[]`)
			})
		})

		Convey("When fetching a known id", func() {
			w := do(h, http.MethodGet, "/institutions/1", "")

			Convey("Then it is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var inst institution.Institution
				So(json.Unmarshal(w.Body.Bytes(), &inst), ShouldBeNil)
				So(inst.Name, ShouldEqual, "Stanford University")
			})
		})

		Convey("When fetching an unknown id", func() {
			w := do(h, http.MethodGet, "/institutions/99", "")

			Convey("Then 404 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When the id is not a positive integer", func() {
			So(do(h, http.MethodGet, "/institutions/abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/institutions/-1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/institutions/1/x", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestTimeoutMiddleware(t *testing.T) {
	Convey("Given a handler wrapped with a timeout", t, func() {
		var deadline time.Time
		var ok bool
		h := api.TimeoutMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline, ok = r.Context().Deadline()
		}), 50*time.Millisecond)

		Convey("When a request is served", func() {
			do(h, http.MethodGet, "/", "")

			Convey("Then its context carries a deadline", func() {
				So(ok, ShouldBeTrue)
				So(time.Until(deadline) <= 50*time.Millisecond, ShouldBeTrue)
			})
		})

		Convey("When the timeout is disabled", func() {
			plain := api.TimeoutMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, ok = r.Context().Deadline()
			}), 0)
			do(plain, http.MethodGet, "/", "")

			Convey("Then the context has no deadline", func() {
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestKindErrors(t *testing.T) {
	Convey("Given kind-tagged errors", t, func() {
		cause := errors.New("boom")

		Convey("Then both the kind and the cause match", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: boom")
		})

		Convey("And NewKind reports the kind itself", func() {
			err := api.NewKind("api.op", api.ErrNotFound)
			So(errors.Is(err, api.ErrNotFound), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: not found")
		})

		Convey("And Wrap keeps an inner kind or defaults to internal", func() {
			So(errors.Is(api.Wrap("outer", api.NewKind("inner", api.ErrTimeout)), api.ErrTimeout), ShouldBeTrue)
			So(errors.Is(api.Wrap("outer", cause), api.ErrInternal), ShouldBeTrue)
			So(api.Wrap("outer", nil), ShouldBeNil)
		})
	})
}
