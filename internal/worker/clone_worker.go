package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/voicemirror/api/internal/client"
	"github.com/voicemirror/api/internal/model"
	"github.com/voicemirror/api/internal/registry"
	"github.com/voicemirror/api/internal/tts"
)

// CloneJob is everything a runner needs to execute one clone job. All paths
// are absolute or process-relative; nothing references the originating
// request, which may be long gone by the time the job runs.
type CloneJob struct {
	JobID      string
	Text       string
	Language   string
	Device     string
	InputPath  string
	OutputName string
	OutputPath string
}

// Converter turns an uploaded reference into a model-native file.
type Converter interface {
	Available() bool
	Convert(ctx context.Context, inputPath string) (string, error)
}

// CloneWorker drives a single job through its six stages, mutating the
// registry as it goes. Failures never escape: they become job-error state.
type CloneWorker struct {
	registry  *registry.Registry
	cache     *tts.ServiceCache
	converter Converter
}

// NewCloneWorker creates a new clone worker.
func NewCloneWorker(reg *registry.Registry, cache *tts.ServiceCache, converter Converter) *CloneWorker {
	return &CloneWorker{
		registry:  reg,
		cache:     cache,
		converter: converter,
	}
}

// Process runs the job to a terminal state. It is safe to call with an id
// that has been evicted; all registry mutations degrade to no-ops.
func (w *CloneWorker) Process(ctx context.Context, job CloneJob) {
	log.Printf("Starting clone job %s", job.JobID)
	w.registry.SetStatus(job.JobID, model.JobStatusRunning)

	failed, err := w.run(ctx, job)
	if err != nil {
		w.registry.UpdateStep(job.JobID, failed, model.StepError, "")
		w.registry.SetError(job.JobID, err.Error())
		log.Printf("Clone job %s failed at step %d: %v", job.JobID, failed, err)
		return
	}

	log.Printf("Clone job %s completed", job.JobID)
}

// run advances stages in order and returns the index of the failing stage
// alongside the error. A panic is converted to a failure of whichever stage
// was active.
func (w *CloneWorker) run(ctx context.Context, job CloneJob) (current int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	// Stages 0-2 are bookkeeping: input was validated and saved before the
	// runner started. They exist for user-visible progress granularity.
	for current = model.StepPreparing; current <= model.StepWaitingForServer; current++ {
		w.registry.UpdateStep(job.JobID, current, model.StepActive, "")
		w.registry.UpdateStep(job.JobID, current, model.StepDone, "")
	}

	current = model.StepLoadingModel
	if !w.cache.IsLoaded(job.Device) {
		w.registry.UpdateStep(job.JobID, current, model.StepActive, "")
		if err := w.cache.Warm(ctx, job.Device); err != nil {
			return current, err
		}
		w.registry.UpdateStep(job.JobID, current, model.StepDone, "")
	} else {
		w.registry.UpdateStep(job.JobID, current, model.StepDone, "Model already in memory")
	}

	current = model.StepGeneratingAudio
	w.registry.UpdateStep(job.JobID, current, model.StepActive, "Synthesizing speech")

	refPath := job.InputPath
	if client.NeedsConversion(refPath) {
		if !w.converter.Available() {
			return current, fmt.Errorf("reference format not supported by backend: install ffmpeg or upload WAV/OGG/OPUS/MP3/FLAC")
		}
		w.registry.UpdateStep(job.JobID, current, model.StepActive, "Converting reference audio")
		converted, convErr := w.converter.Convert(ctx, refPath)
		if convErr != nil {
			return current, convErr
		}
		refPath = converted
		w.registry.UpdateStep(job.JobID, current, model.StepActive, "Synthesizing speech")
	}

	svc := w.cache.Get(job.Device)
	if err := svc.Synthesize(ctx, client.SynthesizeRequest{
		Text:       job.Text,
		SpeakerWav: refPath,
		Language:   job.Language,
		OutputPath: job.OutputPath,
	}); err != nil {
		return current, err
	}
	w.registry.UpdateStep(job.JobID, current, model.StepDone, "")

	current = model.StepFinalizing
	w.registry.UpdateStep(job.JobID, current, model.StepActive, "")
	// The locator is derived from the assigned output name, never from the
	// request context: the runner outlives the originating request.
	w.registry.SetAudioURL(job.JobID, "/outputs/"+job.OutputName)
	w.registry.UpdateStep(job.JobID, current, model.StepDone, "")
	w.registry.SetStatus(job.JobID, model.JobStatusDone)

	return current, nil
}
