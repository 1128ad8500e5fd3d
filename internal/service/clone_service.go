package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voicemirror/api/internal/client"
	"github.com/voicemirror/api/internal/model"
	"github.com/voicemirror/api/internal/registry"
	"github.com/voicemirror/api/internal/tts"
	"github.com/voicemirror/api/internal/worker"
)

// ErrJobNotFound is returned for unknown or evicted job ids.
var ErrJobNotFound = errors.New("job not found")

// allowedExts is the upload extension allow-list.
var allowedExts = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"m4a":  true,
	"flac": true,
	"ogg":  true,
	"opus": true,
	"webm": true,
}

// AllowedFile reports whether the uploaded filename's extension is accepted.
func AllowedFile(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return allowedExts[ext]
}

// JobDispatcher hands a clone job to the background pool.
type JobDispatcher interface {
	Dispatch(job worker.CloneJob)
}

// CloneService accepts clone submissions: it persists the uploaded
// reference, registers the job, and hands it off for background execution.
type CloneService struct {
	registry   *registry.Registry
	dispatcher JobDispatcher
	cache      *tts.ServiceCache
	converter  worker.Converter
	uploadDir  string
	outputDir  string
	now        func() time.Time
}

// NewCloneService creates a new clone service.
func NewCloneService(
	reg *registry.Registry,
	dispatcher JobDispatcher,
	cache *tts.ServiceCache,
	converter worker.Converter,
	uploadDir, outputDir string,
) *CloneService {
	return &CloneService{
		registry:   reg,
		dispatcher: dispatcher,
		cache:      cache,
		converter:  converter,
		uploadDir:  uploadDir,
		outputDir:  outputDir,
		now:        time.Now,
	}
}

// StartClone persists the reference audio, creates the job record, and
// dispatches the runner. It returns the job id without waiting for
// synthesis. The upload is written before the job exists so the runner
// never depends on request state.
func (s *CloneService) StartClone(req *model.CloneStartRequest, filename string, file io.Reader) (string, error) {
	s.registry.Evict()

	paths, err := s.saveReference(filename, file)
	if err != nil {
		return "", err
	}

	jobID := s.registry.Create()
	s.dispatcher.Dispatch(worker.CloneJob{
		JobID:      jobID,
		Text:       req.Text,
		Language:   req.Language,
		Device:     req.Device,
		InputPath:  paths.input,
		OutputName: paths.outputName,
		OutputPath: paths.output,
	})

	return jobID, nil
}

// Status returns a snapshot of the job for client polling.
func (s *CloneService) Status(jobID string) (*model.Job, error) {
	s.registry.Evict()

	job := s.registry.Get(jobID)
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// CloneSync performs the whole pipeline inline and returns the artifact
// locator. This is the legacy blocking endpoint; the job registry is not
// involved.
func (s *CloneService) CloneSync(ctx context.Context, req *model.CloneStartRequest, filename string, file io.Reader) (string, error) {
	paths, err := s.saveReference(filename, file)
	if err != nil {
		return "", err
	}

	refPath := paths.input
	if client.NeedsConversion(refPath) {
		converted, convErr := s.converter.Convert(ctx, refPath)
		if convErr != nil {
			return "", convErr
		}
		refPath = converted
	}

	svc := s.cache.Get(req.Device)
	if err := svc.Synthesize(ctx, client.SynthesizeRequest{
		Text:       req.Text,
		SpeakerWav: refPath,
		Language:   req.Language,
		OutputPath: paths.output,
	}); err != nil {
		return "", err
	}

	return "/outputs/" + paths.outputName, nil
}

type referencePaths struct {
	input      string
	outputName string
	output     string
}

// saveReference writes the upload under a collision-resistant name and
// derives the matching output location.
func (s *CloneService) saveReference(filename string, file io.Reader) (referencePaths, error) {
	millis := s.now().UnixMilli()
	name := fmt.Sprintf("%d_%s", millis, sanitizeFilename(filename))
	outputName := fmt.Sprintf("clone_%d.wav", millis)

	paths := referencePaths{
		input:      filepath.Join(s.uploadDir, name),
		outputName: outputName,
		output:     filepath.Join(s.outputDir, outputName),
	}

	dst, err := os.Create(paths.input)
	if err != nil {
		return referencePaths{}, fmt.Errorf("failed to save upload: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return referencePaths{}, fmt.Errorf("failed to save upload: %w", err)
	}
	return paths, nil
}

// sanitizeFilename strips path components and anything outside a safe
// character set from a client-supplied filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.Trim(name, "._")
	if name == "" {
		name = "audio"
	}
	return name
}
