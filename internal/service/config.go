package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	v1 "scansync/api/v1"

	"github.com/spf13/viper"
)

// SyncConfig enumerates every recognized sync option with validated
// defaults. One instance lives in the orchestrator; runtime updates go
// through Patch.
type SyncConfig struct {
	Aggregator           string
	MaxConcurrentUploads int
	RetryAttempts        int
	Timeout              time.Duration
	CreateDelay          time.Duration
	VerifyIntegrity      bool
	ResumeUploads        bool
	MinFileSize          int64
	MaxFileSize          int64
	AllowedExtensions    map[string]bool
}

func NewSyncConfig(conf *viper.Viper) *SyncConfig {
	c := &SyncConfig{
		Aggregator:           conf.GetString("sync.aggregator"),
		MaxConcurrentUploads: conf.GetInt("sync.max_concurrent_uploads"),
		RetryAttempts:        conf.GetInt("sync.retry_attempts"),
		Timeout:              time.Duration(conf.GetInt("sync.timeout_seconds")) * time.Second,
		CreateDelay:          time.Duration(conf.GetInt("sync.create_delay_ms")) * time.Millisecond,
		VerifyIntegrity:      true,
		ResumeUploads:        true,
		MinFileSize:          conf.GetInt64("sync.min_file_size"),
		MaxFileSize:          conf.GetInt64("sync.max_file_size"),
		AllowedExtensions:    map[string]bool{},
	}
	// Integrity and resume are on unless the config says otherwise; an
	// absent key must not read as false.
	if conf.IsSet("sync.verify_integrity") {
		c.VerifyIntegrity = conf.GetBool("sync.verify_integrity")
	}
	if conf.IsSet("sync.resume_uploads") {
		c.ResumeUploads = conf.GetBool("sync.resume_uploads")
	}
	for _, ext := range conf.GetStringSlice("sync.allowed_extensions") {
		c.AllowedExtensions[strings.ToLower(ext)] = true
	}
	c.applyDefaults()
	return c
}

func (c *SyncConfig) applyDefaults() {
	if c.Aggregator == "" {
		c.Aggregator = "Gikamura"
	}
	if c.MaxConcurrentUploads <= 0 {
		c.MaxConcurrentUploads = 3
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.CreateDelay <= 0 {
		c.CreateDelay = 300 * time.Millisecond
	}
	if c.MinFileSize <= 0 {
		c.MinFileSize = 1024
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 * 1024 * 1024
	}
	if len(c.AllowedExtensions) == 0 {
		for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp"} {
			c.AllowedExtensions[ext] = true
		}
	}
}

func (c *SyncConfig) Validate() error {
	if c.MaxConcurrentUploads < 1 || c.MaxConcurrentUploads > 64 {
		return fmt.Errorf("max_concurrent_uploads out of range: %d", c.MaxConcurrentUploads)
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("retry_attempts out of range: %d", c.RetryAttempts)
	}
	if c.MinFileSize > c.MaxFileSize {
		return fmt.Errorf("min_file_size %d exceeds max_file_size %d", c.MinFileSize, c.MaxFileSize)
	}
	return nil
}

// Clone returns an independent copy, used to snapshot the config per run.
func (c *SyncConfig) Clone() *SyncConfig {
	out := *c
	out.AllowedExtensions = make(map[string]bool, len(c.AllowedExtensions))
	for k, v := range c.AllowedExtensions {
		out.AllowedExtensions[k] = v
	}
	return &out
}

// ConfigHolder guards the active configuration against concurrent readers
// and API updates.
type ConfigHolder struct {
	mu   sync.RWMutex
	conf *SyncConfig
}

func NewConfigHolder(conf *viper.Viper) *ConfigHolder {
	return &ConfigHolder{conf: NewSyncConfig(conf)}
}

func (h *ConfigHolder) Get() *SyncConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conf.Clone()
}

// Patch applies the provided fields, rejecting the whole patch when the
// result does not validate.
func (h *ConfigHolder) Patch(p *v1.SyncConfigPayload) error {
	if p == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.conf.Clone()
	if p.MaxConcurrentUploads != nil {
		next.MaxConcurrentUploads = *p.MaxConcurrentUploads
	}
	if p.RetryAttempts != nil {
		next.RetryAttempts = *p.RetryAttempts
	}
	if p.TimeoutSeconds != nil {
		next.Timeout = time.Duration(*p.TimeoutSeconds) * time.Second
	}
	if p.VerifyIntegrity != nil {
		next.VerifyIntegrity = *p.VerifyIntegrity
	}
	if p.ResumeUploads != nil {
		next.ResumeUploads = *p.ResumeUploads
	}
	if err := next.Validate(); err != nil {
		return err
	}
	h.conf = next
	return nil
}
