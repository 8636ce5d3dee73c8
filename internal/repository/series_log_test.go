package repository

import (
	"os"
	"path/filepath"
	"testing"

	"scansync/internal/model"
	"scansync/pkg/log"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestSeriesLogRepo(t *testing.T) (SeriesLogRepository, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "_LOGS")
	conf := viper.New()
	conf.Set("sync.logs_dir", dir)
	return NewSeriesLogRepository(conf, &log.Logger{Logger: zap.NewNop()}), dir
}

func record(filename string) *model.HierarchicalRecord {
	return &model.HierarchicalRecord{
		Aggregator: "Gikamura",
		Scan:       "ScanA",
		Series:     "SerieB",
		Chapter:    "Cap 01",
		Filename:   filename,
	}
}

func TestSeriesLogAppendCreatesJournalFile(t *testing.T) {
	repo, dir := newTestSeriesLogRepo(t)

	repo.Append(record("p1.jpg"), model.SeriesOutcomeSuccess, "Enviado", "abc")

	_, err := os.Stat(filepath.Join(dir, "Gikamura_ScanA_SerieB.json"))
	assert.NoError(t, err)

	doc := repo.Get("Gikamura", "ScanA", "SerieB")
	assert.NotNil(t, doc)
	assert.Equal(t, 1, doc.Estatisticas.TotalArquivos)
	assert.Equal(t, 1, doc.Estatisticas.Sucessos)
	assert.Equal(t, "p1.jpg", doc.Historico[0].Arquivo)
	assert.Equal(t, "abc", doc.Historico[0].Hash)
}

func TestSeriesLogStatusClassification(t *testing.T) {
	repo, _ := newTestSeriesLogRepo(t)

	assert.Equal(t, model.SeriesStatusPending, repo.Status("Gikamura", "ScanA", "SerieB"))

	repo.Append(record("p1.jpg"), model.SeriesOutcomeSuccess, "", "")
	repo.Append(record("p2.jpg"), model.SeriesOutcomeFailure, "timeout", "")
	assert.Equal(t, model.SeriesStatusPartial, repo.Status("Gikamura", "ScanA", "SerieB"))
}

func TestSeriesLogConsolidatedStatus(t *testing.T) {
	repo, _ := newTestSeriesLogRepo(t)

	repo.Append(record("Cap 01.png"), model.SeriesOutcomeSuccess, "Enviado", "abc")
	repo.Append(record("Cap 02.png"), model.SeriesOutcomeSuccess, "Enviado", "def")

	assert.Equal(t, model.SeriesStatusConsolidated, repo.Status("Gikamura", "ScanA", "SerieB"))
}

func TestSeriesLogAccumulatesAcrossRuns(t *testing.T) {
	repo, dir := newTestSeriesLogRepo(t)
	repo.Append(record("p1.jpg"), model.SeriesOutcomeSuccess, "", "")

	// A fresh repository over the same directory keeps appending to the
	// same journal.
	conf := viper.New()
	conf.Set("sync.logs_dir", dir)
	reopened := NewSeriesLogRepository(conf, &log.Logger{Logger: zap.NewNop()})
	reopened.Append(record("p2.jpg"), model.SeriesOutcomeSuccess, "", "")

	doc := reopened.Get("Gikamura", "ScanA", "SerieB")
	assert.Equal(t, 2, doc.Estatisticas.TotalArquivos)
	assert.Equal(t, model.SeriesStatusComplete, doc.DerivedStatus())
}

func TestSeriesLogLoadAllAndClear(t *testing.T) {
	repo, _ := newTestSeriesLogRepo(t)

	repo.Append(record("p1.jpg"), model.SeriesOutcomeSuccess, "", "")
	other := &model.HierarchicalRecord{
		Aggregator: "Gikamura", Scan: "ScanA", Series: "SerieC", Filename: "p1.jpg",
	}
	repo.Append(other, model.SeriesOutcomeFailure, "timeout", "")

	all := repo.LoadAll()
	assert.Len(t, all, 2)
	assert.Contains(t, all, "Gikamura/ScanA/SerieB")
	assert.Contains(t, all, "Gikamura/ScanA/SerieC")

	assert.NoError(t, repo.Clear())
	assert.Empty(t, repo.LoadAll())
	assert.Nil(t, repo.Get("Gikamura", "ScanA", "SerieB"))
}
