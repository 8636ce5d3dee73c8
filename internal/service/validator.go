package service

import (
	"fmt"
	"os"

	"scansync/internal/model"
	"scansync/pkg/hash"
	"scansync/pkg/log"
)

// ValidationResult separates the usable file set from per-file rejection
// reasons. The run only dies when the valid set is empty.
type ValidationResult struct {
	Valid     []*model.HierarchicalRecord
	Invalid   []string
	Errors    []string
	TotalSize int64
}

type ValidatorService interface {
	ValidateFiles(records []*model.HierarchicalRecord) *ValidationResult
}

func NewValidatorService(
	service *Service,
	holder *ConfigHolder,
	logger *log.Logger,
) ValidatorService {
	return &validatorService{
		Service: service,
		holder:  holder,
		logger:  logger,
	}
}

type validatorService struct {
	*Service
	holder *ConfigHolder
	logger *log.Logger
}

func (s *validatorService) ValidateFiles(records []*model.HierarchicalRecord) *ValidationResult {
	conf := s.holder.Get()
	result := &ValidationResult{}
	seenHashes := map[string]string{}

	for _, record := range records {
		if errs := s.validateSingle(record, conf); len(errs) > 0 {
			result.Invalid = append(result.Invalid, record.LocalPath)
			for _, e := range errs {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", record.LocalPath, e))
			}
			continue
		}

		fi, err := os.Stat(record.LocalPath)
		if err != nil {
			result.Invalid = append(result.Invalid, record.LocalPath)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", record.LocalPath, err))
			continue
		}

		if conf.VerifyIntegrity {
			digest, err := hash.FileMD5(record.LocalPath)
			if err != nil {
				result.Invalid = append(result.Invalid, record.LocalPath)
				result.Errors = append(result.Errors, fmt.Sprintf("%s: hash failed: %v", record.LocalPath, err))
				continue
			}
			if dup, ok := seenHashes[digest]; ok {
				result.Invalid = append(result.Invalid, record.LocalPath)
				result.Errors = append(result.Errors, fmt.Sprintf("duplicate content: %s = %s", record.LocalPath, dup))
				continue
			}
			seenHashes[digest] = record.LocalPath
		}

		result.Valid = append(result.Valid, record)
		result.TotalSize += fi.Size()
	}
	return result
}

func (s *validatorService) validateSingle(record *model.HierarchicalRecord, conf *SyncConfig) []string {
	var errs []string

	fi, err := os.Stat(record.LocalPath)
	if err != nil {
		return []string{"file not found"}
	}
	if fi.IsDir() {
		return []string{"path is not a file"}
	}

	if fi.Size() < conf.MinFileSize {
		errs = append(errs, fmt.Sprintf("file too small: %d bytes", fi.Size()))
	} else if fi.Size() > conf.MaxFileSize {
		errs = append(errs, fmt.Sprintf("file too large: %d bytes", fi.Size()))
	}

	// Readability probe, first 1KB.
	f, err := os.Open(record.LocalPath)
	if err != nil {
		errs = append(errs, fmt.Sprintf("file not readable: %v", err))
	} else {
		buf := make([]byte, 1024)
		if _, err := f.Read(buf); err != nil && fi.Size() > 0 {
			errs = append(errs, fmt.Sprintf("file not readable: %v", err))
		}
		f.Close()
	}

	return errs
}
