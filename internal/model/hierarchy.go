package model

import "path"

// HierarchicalRecord is the resolved remote address of one local file:
// aggregator/scan/series[/chapter]/filename. Immutable once built.
type HierarchicalRecord struct {
	Aggregator   string `json:"agregador"`
	Scan         string `json:"scan"`
	Series       string `json:"serie"`
	Chapter      string `json:"capitulo,omitempty"` // empty for files directly under the series
	Filename     string `json:"arquivo"`
	LocalPath    string `json:"caminho_local"`
	RelativePath string `json:"caminho_relativo"`
}

// RemotePath is the directory path of the record, without the filename.
func (r *HierarchicalRecord) RemotePath() string {
	if r.Chapter != "" {
		return path.Join(r.Aggregator, r.Scan, r.Series, r.Chapter)
	}
	return path.Join(r.Aggregator, r.Scan, r.Series)
}

// SeriesKey identifies the series a record belongs to, across chapters.
func (r *HierarchicalRecord) SeriesKey() string {
	return path.Join(r.Aggregator, r.Scan, r.Series)
}

// Levels returns the remote directory names in creation order, aggregator
// first.
func (r *HierarchicalRecord) Levels() []string {
	levels := []string{r.Aggregator, r.Scan, r.Series}
	if r.Chapter != "" {
		levels = append(levels, r.Chapter)
	}
	return levels
}
