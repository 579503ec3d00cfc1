package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/admitcast/internal/adapters/repository"
	app "github.com/okian/admitcast/internal/app"
	"github.com/okian/admitcast/internal/config"
	"github.com/okian/admitcast/internal/domain/model"
	"github.com/okian/admitcast/pkg/logger"
	"github.com/okian/admitcast/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

const seedCSV = `university_id,gre_score,ielts_score,toefl_score,technical_papers_count,total_work_experience_in_months,application_status
1,328,8,,3,30,6
1,301,6.5,,0,0,7
1,322,7.5,,2,18,6
1,305,6,,1,6,7
1,310,,,1,6,6
x,300,7,,0,0,6
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admits.csv")
	if err := os.WriteFile(path, []byte(seedCSV), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given a seed CSV", t, func() {
		ctx := context.Background()
		seed := writeSeed(t)

		convey.Convey("When opening the memory store", func() {
			cfg := config.New(ctx)
			cfg.SeedCSV = seed
			store, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then the valid rows are loaded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Count(ctx), convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When opening a sqlite store", func() {
			cfg := config.New(ctx)
			cfg.Store = config.StoreSQLite
			cfg.DatabaseDSN = filepath.Join(t.TempDir(), "admits.db")
			cfg.SeedCSV = seed
			store, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then the schema is migrated and seeded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Count(ctx), convey.ShouldEqual, 4)
				decided, err := store.FetchDecided(ctx, 1, model.FamilyA)
				convey.So(err, convey.ShouldBeNil)
				convey.So(decided, convey.ShouldHaveLength, 4)
			})
		})

		convey.Convey("When the seed file is missing", func() {
			cfg := config.New(ctx)
			cfg.SeedCSV = filepath.Join(t.TempDir(), "missing.csv")
			_, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then an error is returned", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

type closingStore struct {
	repository.Store
	closed int
	err    error
}

func (c *closingStore) Close() error {
	c.closed++
	return c.err
}

func TestCloseStore(t *testing.T) {
	convey.Convey("Given stores with and without a Close method", t, func() {
		ctx := context.Background()

		convey.Convey("When the store holds a pool", func() {
			s := &closingStore{Store: repository.NewInMemoryStore()}
			closeStore(ctx, s, logger.Nop())
			convey.So(s.closed, convey.ShouldEqual, 1)
		})

		convey.Convey("When Close fails the error is only logged", func() {
			s := &closingStore{Store: repository.NewInMemoryStore(), err: errors.New("busy")}
			convey.So(func() { closeStore(ctx, s, logger.Nop()) }, convey.ShouldNotPanic)
			convey.So(s.closed, convey.ShouldEqual, 1)
		})

		convey.Convey("When the store is in memory", func() {
			convey.So(func() { closeStore(ctx, repository.NewInMemoryStore(), logger.Nop()) }, convey.ShouldNotPanic)
		})
	})
}

func TestRun_RubricFileError(t *testing.T) {
	convey.Convey("Given a sqlite store and a missing rubric file", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.Store = config.StoreSQLite
		cfg.DatabaseDSN = filepath.Join(t.TempDir(), "admits.db")
		cfg.RubricFile = filepath.Join(t.TempDir(), "none.yaml")

		err := run(ctx, cfg, logger.Nop())

		convey.Convey("Then run fails before serving", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "rubric")
		})
	})
}

func TestMetricsOptions(t *testing.T) {
	convey.Convey("Given metrics settings in the config", t, func() {
		cfg := config.New(context.Background())
		cfg.MetricsNamespace = "admissions"
		cfg.MetricsSubsystem = "api"
		cfg.MetricsBucketsMS = []float64{1, 10, 100}
		cfg.MetricsLabels = map[string]string{"env": "test"}

		registry := prometheus.NewRegistry()
		metrics.NewManager(append(metricsOptions(cfg), metrics.WithPrometheusRegistry(registry))...)

		convey.Convey("Then the manager registers under the configured prefix", func() {
			families, err := registry.Gather()
			convey.So(err, convey.ShouldBeNil)
			found := false
			for _, f := range families {
				convey.So(strings.HasPrefix(f.GetName(), "admissions_api_"), convey.ShouldBeTrue)
				if f.GetName() == "admissions_api_repository_records_total" {
					found = true
					convey.So(f.GetMetric()[0].GetLabel()[0].GetValue(), convey.ShouldEqual, "test")
				}
			}
			convey.So(found, convey.ShouldBeTrue)
		})
	})
}

func TestLoadRubricFile(t *testing.T) {
	convey.Convey("Given rubric files", t, func() {
		convey.Convey("When the file does not exist", func() {
			_, err := loadRubricFile(filepath.Join(t.TempDir(), "none.yaml"))
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the file is a valid table", func() {
			path := filepath.Join(t.TempDir(), "rubrics.yaml")
			content := `institutions:
  - id: 42
    name: Test University
    documents:
      SOP:
        emphasis: Research
        minimum_words: 100
        ideal_words: 200
        criteria:
          - name: Research
            weight: 1.0
            keywords: [research]
`
			convey.So(os.WriteFile(path, []byte(content), 0o600), convey.ShouldBeNil)
			table, err := loadRubricFile(path)

			convey.Convey("Then it replaces the embedded table", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(table.Len(), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given a started service behind the full handler chain", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.SeedCSV = writeSeed(t)
		store, err := openStore(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)

		svc := app.New(app.WithLogger(logger.Nop()), app.WithStore(store), app.WithEpochs(5))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		h := newHandler(ctx, cfg, svc)

		convey.Convey("When posting a forecast", func() {
			body := `{"institutionId":1,"standardizedTestScore":320,"englishTestFamily":"A","englishTestScore":7.5,
"workExperienceMonths":24,"publicationCount":2,"sopScore":8,"lorScore":9}`
			req := httptest.NewRequest(http.MethodPost, "/forecasts", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			convey.Convey("Then a forecast is returned with a request id header", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("X-Request-ID"), convey.ShouldNotBeEmpty)
				var res model.ForecastResult
				convey.So(json.Unmarshal(w.Body.Bytes(), &res), convey.ShouldBeNil)
				convey.So(res.TrainingRecords, convey.ShouldHaveLength, 4)
				convey.So(res.Probability, convey.ShouldBeBetweenOrEqual, 0, 1)
			})
		})

		convey.Convey("When posting a forecast with a client request id", func() {
			body := `{"institutionId":1,"standardizedTestScore":320,"englishTestFamily":"A","englishTestScore":7.5,
"workExperienceMonths":24,"publicationCount":2,"sopScore":8,"lorScore":9}`
			req := httptest.NewRequest(http.MethodPost, "/forecasts", strings.NewReader(body))
			req.Header.Set("X-Request-ID", "client-abc")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			convey.Convey("Then the header and the body carry the same id", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("X-Request-ID"), convey.ShouldEqual, "client-abc")
				var res model.ForecastResult
				convey.So(json.Unmarshal(w.Body.Bytes(), &res), convey.ShouldBeNil)
				convey.So(res.RequestID, convey.ShouldEqual, "client-abc")
			})
		})

		convey.Convey("When posting a forecast without a request id", func() {
			body := `{"institutionId":1,"standardizedTestScore":320,"englishTestFamily":"A","englishTestScore":7.5,
"workExperienceMonths":24,"publicationCount":2,"sopScore":8,"lorScore":9}`
			req := httptest.NewRequest(http.MethodPost, "/forecasts", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			convey.Convey("Then the generated header id is the body id", func() {
				var res model.ForecastResult
				convey.So(json.Unmarshal(w.Body.Bytes(), &res), convey.ShouldBeNil)
				convey.So(res.RequestID, convey.ShouldNotBeEmpty)
				convey.So(w.Header().Get("X-Request-ID"), convey.ShouldEqual, res.RequestID)
			})
		})

		convey.Convey("When requesting the API docs", func() {
			req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("When listing institutions", func() {
			req := httptest.NewRequest(http.MethodGet, "/institutions", http.NoBody)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "Stanford University")
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		convey.Convey("Then a system metrics update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the updaters return once the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			svc := app.New(app.WithLogger(logger.Nop()))
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			convey.So(func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, svc)
			}, convey.ShouldNotPanic)
		})
	})
}
