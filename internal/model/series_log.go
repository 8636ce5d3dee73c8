package model

import "strings"

// Per-file outcomes recorded in the series journal. The Portuguese values
// are part of the persisted document format.
const (
	SeriesOutcomeSuccess = "sucesso"
	SeriesOutcomeFailure = "falha"
	SeriesOutcomeSkipped = "pulado"
)

// Derived series statuses, never persisted.
const (
	SeriesStatusConsolidated = "consolidado"
	SeriesStatusComplete     = "completo"
	SeriesStatusPartial      = "parcial"
	SeriesStatusPending      = "pendente"
)

type SeriesLogEntry struct {
	Timestamp string `json:"timestamp"`
	Arquivo   string `json:"arquivo"`
	Status    string `json:"status"`
	Detalhes  string `json:"detalhes"`
	Hash      string `json:"hash,omitempty"`
}

type SeriesLogStats struct {
	TotalArquivos int `json:"total_arquivos"`
	Sucessos      int `json:"sucessos"`
	Falhas        int `json:"falhas"`
	Pulados       int `json:"pulados"`
}

// SeriesLog is the per-series journal document. Key names are the external
// on-disk contract.
type SeriesLog struct {
	Agregador    string           `json:"agregador"`
	Scan         string           `json:"scan"`
	Serie        string           `json:"serie"`
	Historico    []SeriesLogEntry `json:"historico"`
	Estatisticas SeriesLogStats   `json:"estatisticas"`
}

func NewSeriesLog(aggregator, scan, series string) *SeriesLog {
	return &SeriesLog{
		Agregador: aggregator,
		Scan:      scan,
		Serie:     series,
		Historico: []SeriesLogEntry{},
	}
}

// Append records one outcome and updates the aggregate counters. Total
// counts history entries, matching the stored statistics of earlier runs.
func (l *SeriesLog) Append(entry SeriesLogEntry) {
	l.Historico = append(l.Historico, entry)
	l.Estatisticas.TotalArquivos = len(l.Historico)
	switch entry.Status {
	case SeriesOutcomeSuccess:
		l.Estatisticas.Sucessos++
	case SeriesOutcomeFailure:
		l.Estatisticas.Falhas++
	case SeriesOutcomeSkipped:
		l.Estatisticas.Pulados++
	}
}

// DerivedStatus classifies the series from its journal: consolidado when a
// PNG artifact succeeded and everything else did too, completo when every
// entry succeeded, parcial when some did, pendente otherwise. Any successful
// .png entry counts as the consolidated artifact, whatever its name.
func (l *SeriesLog) DerivedStatus() string {
	total := l.Estatisticas.TotalArquivos
	sucessos := l.Estatisticas.Sucessos

	consolidated := false
	for _, entry := range l.Historico {
		if entry.Status == SeriesOutcomeSuccess && strings.HasSuffix(entry.Arquivo, ".png") {
			consolidated = true
			break
		}
	}

	switch {
	case consolidated && sucessos == total && total > 0:
		return SeriesStatusConsolidated
	case sucessos == total && total > 0:
		return SeriesStatusComplete
	case sucessos > 0:
		return SeriesStatusPartial
	default:
		return SeriesStatusPending
	}
}
