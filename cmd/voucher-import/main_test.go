package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/bistro/internal/domain/voucher"
)

type mockRepo struct {
	mu    sync.Mutex
	codes []string
}

func (m *mockRepo) Upsert(_ context.Context, v *voucher.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, v.Code)
	return nil
}

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		rec     []string
		wantErr bool
	}{
		{"percent", []string{"spring10", "Percent", "10", "5"}, false},
		{"fixed with expiry", []string{"LUNCH", "fixed", "20000", "1", "2030-01-01T00:00:00+07:00"}, false},
		{"too few fields", []string{"A", "Percent", "10"}, true},
		{"bad type", []string{"A", "free", "10", "1"}, true},
		{"percent above 100", []string{"A", "Percent", "150", "1"}, true},
		{"zero limit", []string{"A", "Percent", "10", "0"}, true},
		{"bad expiry", []string{"A", "Percent", "10", "1", "tomorrow"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := parseRecord(tt.rec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.ToUpper(tt.rec[0]), in.Code)
		})
	}
}

func TestRun_SkipsSharedCodes(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.csv.gz",
			"code,discountType,amount,usageLimit,expiredAt",
			"ALPHA,Percent,10,5",
			"SHARED,Percent,15,5",
		),
		writeGz(t, dir, "b.csv.gz",
			"BRAVO,Fixed Amount,20000,1",
			"shared,Percent,15,5",
		),
		writeGz(t, dir, "c.csv.gz",
			"CHARLIE,Percent,5,10,2030-01-01T00:00:00Z",
		),
	}

	repo := &mockRepo{}
	n, err := run(context.Background(), zaptest.NewLogger(t), files, repo)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"ALPHA", "BRAVO", "CHARLIE"}, repo.codes)
}

func TestRun_InvalidRow(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.csv.gz", "ALPHA,Percent,abc,5")}

	_, err := run(context.Background(), zaptest.NewLogger(t), files, &mockRepo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.csv.gz:1")
}
