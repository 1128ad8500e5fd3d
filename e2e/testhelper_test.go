package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/voicemirror/api/internal/client"
	"github.com/voicemirror/api/internal/handler"
	"github.com/voicemirror/api/internal/registry"
	"github.com/voicemirror/api/internal/service"
	"github.com/voicemirror/api/internal/tts"
	"github.com/voicemirror/api/internal/worker"
	"github.com/voicemirror/api/pkg/response"
)

// fakeEngine stands in for the XTTS sidecar. Synthesize writes a small WAV
// to the requested output path so the /outputs route has something to serve.
type fakeEngine struct {
	mu       sync.Mutex
	loadErr  error
	synthErr error
}

func (e *fakeEngine) LoadModel(ctx context.Context, device string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

func (e *fakeEngine) Synthesize(ctx context.Context, req client.SynthesizeRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.synthErr != nil {
		return e.synthErr
	}
	return os.WriteFile(req.OutputPath, []byte("RIFF\x00\x00\x00\x00WAVEfmt "), 0o644)
}

// fakeConverter emulates ffmpeg presence or absence.
type fakeConverter struct {
	available bool
}

func (c *fakeConverter) Available() bool { return c.available }

func (c *fakeConverter) Convert(ctx context.Context, inputPath string) (string, error) {
	out := inputPath + ".wav"
	if err := os.WriteFile(out, []byte("RIFF"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

type testApp struct {
	app       *fiber.App
	engine    *fakeEngine
	converter *fakeConverter
	outputDir string
}

// setupApp creates a Fiber app identical to main.go but with the synthesis
// engine and ffmpeg replaced by fakes and storage rooted in a temp dir.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	uploadDir := t.TempDir()
	outputDir := t.TempDir()

	engine := &fakeEngine{}
	converter := &fakeConverter{available: true}

	cache := tts.NewServiceCache(engine, "cpu")
	reg := registry.New(registry.DefaultTTL, registry.DefaultMaxJobs)

	cloneWorker := worker.NewCloneWorker(reg, cache, converter)
	dispatcher := worker.NewDispatcher(cloneWorker, 2, 16)

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx)
	t.Cleanup(func() {
		cancel()
		dispatcher.Stop()
	})

	validate := validator.New()
	cloneService := service.NewCloneService(reg, dispatcher, cache, converter, uploadDir, outputDir)
	cloneHandler := handler.NewCloneHandler(cloneService, validate)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal Server Error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return response.Error(c, code, message)
		},
	})

	api := app.Group("/api")
	api.Post("/clone_start", cloneHandler.Start)
	api.Get("/clone_status/:jobId", cloneHandler.Status)
	api.Post("/clone", cloneHandler.Clone)

	app.Static("/outputs", outputDir)

	return &testApp{app: app, engine: engine, converter: converter, outputDir: outputDir}
}

// createCloneRequest builds a multipart/form-data request with a fake
// reference file.
func createCloneRequest(t *testing.T, path, text, filename, contentType string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if text != "" {
		_ = writer.WriteField("text", text)
	}
	_ = writer.WriteField("language", "en")

	if filename != "" {
		partHeader := make(textproto.MIMEHeader)
		partHeader.Set("Content-Disposition", `form-data; name="reference"; filename="`+filename+`"`)
		partHeader.Set("Content-Type", contentType)
		part, err := writer.CreatePart(partHeader)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		_, _ = part.Write([]byte("RIFF\x00\x00\x00\x00WAVEfmt "))
		_, _ = part.Write(make([]byte, 1024))
	}

	writer.Close()

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// pollUntilTerminal polls the status endpoint until the job leaves the
// running states or the deadline passes.
func pollUntilTerminal(t *testing.T, app *fiber.App, jobID string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, "/api/clone_status/"+jobID, nil)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusOK)

		result := parseJSON(t, resp)
		status, _ := result["status"].(string)
		if status == "done" || status == "error" {
			return result
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
