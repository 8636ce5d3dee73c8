package service

import (
	"fmt"
	"path/filepath"
	"strings"

	"scansync/internal/model"
	"scansync/pkg/log"
)

// HierarchyService resolves local paths into canonical remote addresses.
// Resolution is pure: the same path against the same root always yields an
// identical record.
type HierarchyService interface {
	// Resolve maps one file under root to its hierarchical record. The
	// returned error carries the rejection reason; no record is produced
	// for rejected paths.
	Resolve(localPath, rootPath string) (*model.HierarchicalRecord, error)
	// GroupBySeries buckets records by aggregator/scan/series.
	GroupBySeries(records []*model.HierarchicalRecord) map[string][]*model.HierarchicalRecord
}

func NewHierarchyService(
	service *Service,
	holder *ConfigHolder,
	logger *log.Logger,
) HierarchyService {
	return &hierarchyService{
		Service: service,
		holder:  holder,
		logger:  logger,
	}
}

type hierarchyService struct {
	*Service
	holder *ConfigHolder
	logger *log.Logger
}

func (s *hierarchyService) Resolve(localPath, rootPath string) (*model.HierarchicalRecord, error) {
	conf := s.holder.Get()

	absPath, err := filepath.Abs(localPath)
	if err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("path outside root: %s", localPath)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !conf.AllowedExtensions[ext] {
		return nil, fmt.Errorf("unsupported extension %q: %s", ext, localPath)
	}

	parts := strings.Split(rel, string(filepath.Separator))
	// Minimum layout is scan/series/file.
	if len(parts) < 3 {
		return nil, fmt.Errorf("insufficient hierarchy depth (%d): %s", len(parts), rel)
	}
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("empty path component: %s", rel)
		}
	}

	aggregator := filepath.Base(absRoot)
	filename := parts[len(parts)-1]

	var scan, series, chapter string
	switch len(parts) {
	case 3:
		// scan/series/file, file sits directly under the series
		scan, series, chapter = parts[0], parts[1], ""
	case 4:
		scan, series, chapter = parts[0], parts[1], parts[2]
	default:
		// Deeper nesting: the trailing levels win, intermediate ones are
		// collapsed away.
		scan = parts[len(parts)-4]
		series = parts[len(parts)-3]
		chapter = parts[len(parts)-2]
	}

	if aggregator == "" || scan == "" || series == "" || filename == "" {
		return nil, fmt.Errorf("invalid hierarchy components: %s", rel)
	}

	return &model.HierarchicalRecord{
		Aggregator:   aggregator,
		Scan:         scan,
		Series:       series,
		Chapter:      chapter,
		Filename:     filename,
		LocalPath:    absPath,
		RelativePath: rel,
	}, nil
}

func (s *hierarchyService) GroupBySeries(records []*model.HierarchicalRecord) map[string][]*model.HierarchicalRecord {
	groups := map[string][]*model.HierarchicalRecord{}
	for _, record := range records {
		key := record.SeriesKey()
		groups[key] = append(groups[key], record)
	}
	return groups
}
