package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDownloadKlines_WritesCSVAndCaches(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))

		ms := start.UnixMilli()
		fmt.Fprintf(w, `[
			[%d,"100.0","101.0","99.0","100.5","10.0",%d,"1000.0",42,"5.0","500.0","0"],
			[%d,"100.5","102.0","100.0","101.5","12.0",%d,"1200.0",43,"6.0","600.0","0"]
		]`, ms, ms+59999, ms+60000, ms+119999)
	}))
	defer srv.Close()

	d := NewKlineDownloader(srv.URL, zap.NewNop())
	d.pause = 0
	path := filepath.Join(t.TempDir(), "data", "BTCUSDT-2024-01-01-2024-01-02.csv")

	require.NoError(t, d.DownloadKlines(context.Background(), "BTCUSDT", path, start, end))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	klines, skipped, err := ReadKlines(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, klines, 2)
	assert.True(t, klines[0].OpenTime.Equal(start))
	assert.Equal(t, 100.0, klines[0].Open)
	assert.Equal(t, 101.0, klines[0].High)
	assert.Equal(t, 99.0, klines[0].Low)
	assert.Equal(t, 101.5, klines[1].Close)

	// 第二次调用命中缓存
	require.NoError(t, d.DownloadKlines(context.Background(), "BTCUSDT", path, start, end))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadKlines_FailureLeavesNoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	d := NewKlineDownloader(srv.URL, zap.NewNop())
	path := filepath.Join(t.TempDir(), "NOPE.csv")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := d.DownloadKlines(context.Background(), "NOPE", path, start, start.Add(time.Hour))
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadKlines_SkipsBadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.csv")
	content := "open_time,open,high,low,close\n" +
		"1704067200000,100,101,99,100.5\n" +
		"oops,1,2,3,4\n" +
		"1704067260000,100.5,102,100\n" +
		"1704067320000,100.5,102,100,101\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	klines, skipped, err := ReadKlines(path)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, klines, 2)
	assert.Equal(t, []float64{100.5, 100, 102, 101}, klines[1].Path())
}

func TestReadKlines_Errors(t *testing.T) {
	_, _, err := ReadKlines(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "header.csv")
	require.NoError(t, os.WriteFile(path, []byte("open_time,open,high,low,close\n"), 0o644))
	_, _, err = ReadKlines(path)
	assert.Error(t, err)
}

func TestSymbolFromPath(t *testing.T) {
	assert.Equal(t, "BNBUSDT", SymbolFromPath("data/BNBUSDT-2025-03-15-2025-06-15.csv"))
	assert.Equal(t, "BTCUSDT", SymbolFromPath("/tmp/BTCUSDT.csv"))
}
