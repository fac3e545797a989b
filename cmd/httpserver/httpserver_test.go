package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-points/internal/domain"
	"github.com/go-petr/pet-points/internal/middleware"
	"github.com/go-petr/pet-points/pkg/configpkg"
)

func testConfig() configpkg.Config {
	return configpkg.Config{
		StoreDriver: configpkg.StoreMemory,
		LockDriver:  configpkg.LockLocal,
		SeedUsers:   []int64{1, 2},
	}
}

func newTestServer(t *testing.T, config configpkg.Config) *Server {
	t.Helper()

	server, err := New(zerolog.Nop(), config)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, server.Close()) })

	return server
}

type pointResponse struct {
	Data struct {
		UserPoint domain.UserPoint `json:"user_point"`
	} `json:"data"`
	Error string `json:"error"`
}

type historiesResponse struct {
	Data struct {
		Histories []domain.PointHistory `json:"histories"`
	} `json:"data"`
}

func do(t *testing.T, server http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}

	request, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	return recorder
}

func decodePoint(t *testing.T, recorder *httptest.ResponseRecorder) domain.UserPoint {
	t.Helper()

	var resp pointResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))

	return resp.Data.UserPoint
}

func TestScenarioAPI(t *testing.T) {
	server := newTestServer(t, testConfig())

	recorder := do(t, server, http.MethodPatch, "/point/1/charge", `{"amount": 100}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, int64(100), decodePoint(t, recorder).Point)
	require.NotEmpty(t, recorder.Header().Get(middleware.RequestIDHeader))

	recorder = do(t, server, http.MethodPatch, "/point/1/charge", `{"amount": 50}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, int64(150), decodePoint(t, recorder).Point)

	recorder = do(t, server, http.MethodPatch, "/point/1/use", `{"amount": 30}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, int64(120), decodePoint(t, recorder).Point)

	recorder = do(t, server, http.MethodPatch, "/point/1/use", `{"amount": 200}`)
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	recorder = do(t, server, http.MethodGet, "/point/1", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, int64(120), decodePoint(t, recorder).Point)

	recorder = do(t, server, http.MethodGet, "/point/1/histories", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var histories historiesResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&histories))
	require.Len(t, histories.Data.Histories, 3)

	var sum int64
	for _, h := range histories.Data.Histories {
		sum += h.Amount
	}
	require.Equal(t, int64(120), sum)
}

func TestErrorsAPI(t *testing.T) {
	server := newTestServer(t, testConfig())

	testCases := []struct {
		name     string
		method   string
		url      string
		body     string
		wantCode int
	}{
		{"UnknownUser", http.MethodGet, "/point/99", "", http.StatusNotFound},
		{"ZeroUser", http.MethodGet, "/point/0", "", http.StatusBadRequest},
		{"NotAnInteger", http.MethodGet, "/point/abc", "", http.StatusBadRequest},
		{"NegativeChargeForUnknownUser", http.MethodPatch, "/point/99/charge", `{"amount": -5}`, http.StatusBadRequest},
		{"ChargeUnknownUser", http.MethodPatch, "/point/99/charge", `{"amount": 5}`, http.StatusNotFound},
		{"MissingAmount", http.MethodPatch, "/point/1/use", `{}`, http.StatusBadRequest},
		{"OpenSeeded", http.MethodPost, "/point/2", "", http.StatusConflict},
		{"OpenNew", http.MethodPost, "/point/3", "", http.StatusCreated},
		{"OpenInvalid", http.MethodPost, "/point/-3", "", http.StatusBadRequest},
		{"UnknownRoute", http.MethodDelete, "/point/1", "", http.StatusNotFound},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			recorder := do(t, server, tc.method, tc.url, tc.body)
			require.Equal(t, tc.wantCode, recorder.Code)
		})
	}
}

func TestConcurrentAPI(t *testing.T) {
	server := newTestServer(t, testConfig())

	const n = 50

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			recorder := do(t, server, http.MethodPatch, "/point/1/charge", `{"amount": 10}`)
			if recorder.Code != http.StatusOK {
				t.Errorf("charge status %d", recorder.Code)
			}
		}()

		go func() {
			defer wg.Done()

			recorder := do(t, server, http.MethodPatch, "/point/2/charge", `{"amount": 1}`)
			if recorder.Code != http.StatusOK {
				t.Errorf("charge status %d", recorder.Code)
			}
		}()
	}

	wg.Wait()

	for id, want := range map[int64]int64{1: n * 10, 2: n} {
		recorder := do(t, server, http.MethodGet, fmt.Sprintf("/point/%d", id), "")
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, want, decodePoint(t, recorder).Point)
	}
}

func TestNewWithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)

	config := testConfig()
	config.LockDriver = configpkg.LockRedis
	config.RedisAddress = mr.Addr()

	server := newTestServer(t, config)

	recorder := do(t, server, http.MethodPatch, "/point/1/charge", `{"amount": 7}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, int64(7), decodePoint(t, recorder).Point)
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	config := testConfig()
	config.LockDriver = configpkg.LockRedis
	config.RedisAddress = addr

	_, err := New(zerolog.Nop(), config)
	require.Error(t, err)
}

func TestNewSeedError(t *testing.T) {
	mr := miniredis.RunT(t)

	config := testConfig()
	config.LockDriver = configpkg.LockRedis
	config.RedisAddress = mr.Addr()
	config.SeedUsers = []int64{1, 0}

	server, err := New(zerolog.Nop(), config)
	require.ErrorIs(t, err, domain.ErrInvalidUserID)
	require.Nil(t, server)
}

func TestSeedSkipsExisting(t *testing.T) {
	server := newTestServer(t, testConfig())

	ctx := context.Background()
	require.NoError(t, Seed(ctx, server.Service, []int64{1, 2, 5}))

	up, err := server.Service.Get(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, up.Point)

	require.ErrorIs(t, Seed(ctx, server.Service, []int64{0}), domain.ErrInvalidUserID)
}
