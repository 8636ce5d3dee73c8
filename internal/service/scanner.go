package service

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"scansync/internal/model"
	"scansync/pkg/log"

	"go.uber.org/zap"
)

// Local journal directory, never uploaded.
const logsDirName = "_LOGS"

// ScanResult summarizes one walk of the root tree.
type ScanResult struct {
	RootPath         string
	TotalFiles       int
	TotalSize        int64
	FilesByExtension map[string]int
	Rejected         []string
}

// ScannerService walks the root tree and resolves every supported file into
// a hierarchical record.
type ScannerService interface {
	FindValidFiles(rootPath string) ([]*model.HierarchicalRecord, *ScanResult, error)
}

func NewScannerService(
	service *Service,
	hierarchy HierarchyService,
	holder *ConfigHolder,
	logger *log.Logger,
) ScannerService {
	return &scannerService{
		Service:   service,
		hierarchy: hierarchy,
		holder:    holder,
		logger:    logger,
	}
}

type scannerService struct {
	*Service
	hierarchy HierarchyService
	holder    *ConfigHolder
	logger    *log.Logger
}

func (s *scannerService) FindValidFiles(rootPath string) ([]*model.HierarchicalRecord, *ScanResult, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, nil, fmt.Errorf("root path not found: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("root path is not a directory: %s", rootPath)
	}

	conf := s.holder.Get()
	result := &ScanResult{
		RootPath:         rootPath,
		FilesByExtension: map[string]int{},
	}
	var records []*model.HierarchicalRecord

	err = filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("scan entry inaccessible", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			if d.Name() == logsDirName {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !conf.AllowedExtensions[ext] {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			s.logger.Warn("scan stat failed", zap.String("path", path), zap.Error(err))
			return nil
		}

		record, err := s.hierarchy.Resolve(path, rootPath)
		if err != nil {
			result.Rejected = append(result.Rejected, fmt.Sprintf("%s: %v", path, err))
			return nil
		}

		result.TotalFiles++
		result.TotalSize += fi.Size()
		result.FilesByExtension[ext]++
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("scan complete",
		zap.String("root", rootPath),
		zap.Int("files", result.TotalFiles),
		zap.Int64("bytes", result.TotalSize),
		zap.Int("rejected", len(result.Rejected)))
	return records, result, nil
}
