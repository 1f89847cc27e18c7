package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patternplay-go/internal/pattern"
	"github.com/cbegin/patternplay-go/internal/theory"
)

var fakeMIDI = []byte("MThd\x00\x00\x00\x06\x00\x01\x00\x03\x01\xe0")

// fakeService mimics the generation endpoint and records the last query.
type fakeService struct {
	mu        sync.Mutex
	lastQuery map[string]string
	method    string
	status    int
	delay     time.Duration
	body      []byte
}

func (f *fakeService) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Any("/generate", func(c *gin.Context) {
		f.mu.Lock()
		f.method = c.Request.Method
		f.lastQuery = map[string]string{}
		for k := range c.Request.URL.Query() {
			f.lastQuery[k] = c.Query(k)
		}
		f.mu.Unlock()
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.status != 0 && f.status != http.StatusOK {
			c.JSON(f.status, gin.H{"error": "generator exploded"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="generated_music.mid"`)
		body := fakeMIDI
		if f.body != nil {
			body = f.body
		}
		c.Data(http.StatusOK, "audio/midi", body)
	})
	return r
}

func (f *fakeService) seen() (string, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.method, f.lastQuery
}

func newFake(t *testing.T, f *fakeService) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	return srv
}

func sampleRequest() Request {
	return Request{
		Params: pattern.Params{Key: "F#", Scale: theory.Minor, Tempo: 96, Octave: 3, EnableChords: true, EnableDrums: false},
		Genre:  "jazz",
	}
}

func TestGenerateReturnsArtifact(t *testing.T) {
	f := &fakeService{}
	srv := newFake(t, f)
	c := NewClient(srv.URL + "/")

	body, err := c.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, fakeMIDI, body)
	method, query := f.seen()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, map[string]string{
		"key":          "F#",
		"scale":        "minor",
		"tempo":        "96",
		"octave":       "3",
		"enableChords": "true",
		"enableDrums":  "false",
		"genre":        "jazz",
	}, query)
}

func TestGenerateDefaultsGenre(t *testing.T) {
	f := &fakeService{}
	srv := newFake(t, f)
	req := sampleRequest()
	req.Genre = ""

	_, err := NewClient(srv.URL).Generate(context.Background(), req)
	require.NoError(t, err)
	_, query := f.seen()
	assert.Equal(t, DefaultGenre, query["genre"])
}

func TestGenerateNon2xxFails(t *testing.T) {
	f := &fakeService{status: http.StatusInternalServerError}
	srv := newFake(t, f)

	body, err := NewClient(srv.URL).Generate(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationRequestFailed)
	assert.Contains(t, err.Error(), "500")
	assert.Nil(t, body)
}

func TestGenerateRejectsOversizedArtifact(t *testing.T) {
	f := &fakeService{body: make([]byte, maxArtifactBytes+1024)}
	srv := newFake(t, f)

	body, err := NewClient(srv.URL).Generate(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrGenerationRequestFailed)
	assert.Contains(t, err.Error(), "exceeds")
	assert.Nil(t, body)
}

func TestGenerateAcceptsArtifactAtLimit(t *testing.T) {
	f := &fakeService{body: make([]byte, maxArtifactBytes)}
	srv := newFake(t, f)

	body, err := NewClient(srv.URL).Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Len(t, body, maxArtifactBytes)
}

func TestGenerateUnreachableFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Generate(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrGenerationRequestFailed)
}

func TestGenerateHonoursTimeout(t *testing.T) {
	f := &fakeService{delay: 200 * time.Millisecond}
	srv := newFake(t, f)

	_, err := NewClient(srv.URL, WithTimeout(20*time.Millisecond)).Generate(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrGenerationRequestFailed)
}

func TestGenerateHonoursCancel(t *testing.T) {
	f := &fakeService{}
	srv := newFake(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL).Generate(ctx, sampleRequest())
	assert.ErrorIs(t, err, ErrGenerationRequestFailed)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("")
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
}

func TestWithTimeoutOwnsItsHTTPClient(t *testing.T) {
	before := http.DefaultClient.Timeout
	c := NewClient("", WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.NotSame(t, http.DefaultClient, c.httpClient)
	assert.Equal(t, before, http.DefaultClient.Timeout)

	other := NewClient("")
	assert.Equal(t, DefaultTimeout, other.httpClient.Timeout)
	assert.Equal(t, DefaultTimeout, NewClient("", WithTimeout(0)).httpClient.Timeout)
}
