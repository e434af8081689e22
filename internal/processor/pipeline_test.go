package processor

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/internal/static"
	"github.com/dnws-project/dnws-go/internal/store"
	"github.com/dnws-project/dnws-go/plugin"
	"github.com/dnws-project/dnws-go/plugin/stat"
	"github.com/dnws-project/dnws-go/test/testutils"
)

func newTestPipeline(t *testing.T, regs ...plugin.Registration) *Pipeline {
	t.Helper()
	root := testutils.WriteDocumentRoot(t, map[string]string{
		"index.html": "<h1>home</h1>",
		"a.png":      "png-bytes",
		"b.jpg":      "jpg-bytes",
	})
	return NewPipeline(plugin.NewRegistry(regs...), static.NewFileServer(root))
}

func get(target string) *exchange.Request {
	return exchange.ParseRequest("GET " + target + " HTTP/1.1\r\nHost: localhost\r\n\r\n")
}

func appendBody(suffix string) func(*exchange.Response) (*exchange.Response, error) {
	return func(resp *exchange.Response) (*exchange.Response, error) {
		out := *resp
		out.Body = append(append([]byte{}, resp.Body...), suffix...)
		return &out, nil
	}
}

func TestPipeline_StaticFallback(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		target          string
		wantStatus      int
		wantContentType string
		wantBody        string
	}{
		{"/", http.StatusOK, "text/html", "<h1>home</h1>"},
		{"/a.png", http.StatusOK, "image/png", "png-bytes"},
		{"/b.jpg", http.StatusOK, "image/jpeg", "jpg-bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp, err := p.Run(get(tt.target))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantContentType, resp.ContentType)
			assert.Equal(t, tt.wantBody, string(resp.Body))
		})
	}
}

func TestPipeline_NotFound(t *testing.T) {
	p := newTestPipeline(t)

	resp, err := p.Run(get("/missing.html"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "404 Not found")

	withoutFiles := NewPipeline(plugin.NewRegistry(), nil)
	resp, err = withoutFiles.Run(get("/index.html"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPipeline_PreProcessingRunsOncePerPluginBeforeRouting(t *testing.T) {
	log := &testutils.CallLog{}
	counterA := &testutils.Recorder{Name: "A", Log: log}
	counterB := &testutils.Recorder{Name: "B", Log: log}
	router := &testutils.Recorder{Name: "R", Log: log}
	passive := &testutils.Recorder{Name: "P", Log: log}

	p := newTestPipeline(t,
		testutils.NewRegistration("a", counterA, true, false),
		testutils.NewRegistration("b", counterB, true, false),
		testutils.NewRegistration("r", router, false, false),
		testutils.NewRegistration("p", passive, false, false),
	)

	resp, err := p.Run(get("/r/anything"))
	require.NoError(t, err)
	assert.Equal(t, "R", string(resp.Body))

	assert.Equal(t, []string{"A.pre", "B.pre", "R.route"}, log.Entries())
	pre, _, _ := counterA.Counts()
	assert.Equal(t, 1, pre)
	assert.Zero(t, passive.Total())
}

func TestPipeline_PostProcessingChainsLeftToRight(t *testing.T) {
	a := &testutils.Recorder{Name: "A", Transform: appendBody("+A")}
	b := &testutils.Recorder{Name: "B", Transform: appendBody("+B")}

	p := newTestPipeline(t,
		testutils.NewRegistration("zz-a", a, false, true),
		testutils.NewRegistration("zz-b", b, false, true),
	)

	resp, err := p.Run(get("/a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes+A+B", string(resp.Body))
	assert.Equal(t, "image/png", resp.ContentType)
}

func TestPipeline_LastMatchingPrefixWins(t *testing.T) {
	general := &testutils.Recorder{Name: "general"}
	specific := &testutils.Recorder{Name: "specific"}

	t.Run("later registration wins", func(t *testing.T) {
		p := newTestPipeline(t,
			testutils.NewRegistration("st", general, false, false),
			testutils.NewRegistration("stat", specific, false, false),
		)
		resp, err := p.Run(get("/stat/page"))
		require.NoError(t, err)
		assert.Equal(t, "specific", string(resp.Body))
	})

	t.Run("later registration wins even when less specific", func(t *testing.T) {
		p := newTestPipeline(t,
			testutils.NewRegistration("stat", specific, false, false),
			testutils.NewRegistration("st", general, false, false),
		)
		resp, err := p.Run(get("/stat/page"))
		require.NoError(t, err)
		assert.Equal(t, "general", string(resp.Body))
	})

	t.Run("every matching plugin is invoked", func(t *testing.T) {
		log := &testutils.CallLog{}
		first := &testutils.Recorder{Name: "first", Log: log}
		second := &testutils.Recorder{Name: "second", Log: log}
		p := newTestPipeline(t,
			testutils.NewRegistration("s", first, false, false),
			testutils.NewRegistration("st", second, false, false),
		)
		_, err := p.Run(get("/stat"))
		require.NoError(t, err)
		assert.Equal(t, []string{"first.route", "second.route"}, log.Entries())
	})
}

func TestPipeline_MalformedRequestReachesNoPlugin(t *testing.T) {
	spy := &testutils.Recorder{Name: "spy"}
	p := newTestPipeline(t, testutils.NewRegistration("", spy, true, true))

	for _, raw := range []string{"", "BROKEN\r\n\r\n", "POST / HTTP/1.1\r\n\r\n"} {
		req := exchange.ParseRequest(raw)
		resp, err := p.Run(req)
		require.NoError(t, err)
		assert.Equal(t, req.Status, resp.StatusCode)
		assert.Nil(t, resp.Body)
	}
	assert.Zero(t, spy.Total())
}

func TestPipeline_PluginFailures(t *testing.T) {
	t.Run("routed plugin error maps to 500 with message", func(t *testing.T) {
		failing := &testutils.Recorder{RespondWith: func(*exchange.Request) (*exchange.Response, error) {
			return nil, errors.New("backend unavailable")
		}}
		p := newTestPipeline(t, testutils.NewRegistration("api", failing, false, false))

		resp, err := p.Run(get("/api"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, string(resp.Body), "backend unavailable")
	})

	t.Run("routed plugin returning nothing maps to 500", func(t *testing.T) {
		empty := &testutils.Recorder{RespondWith: func(*exchange.Request) (*exchange.Response, error) {
			return nil, nil
		}}
		p := newTestPipeline(t, testutils.NewRegistration("api", empty, false, false))

		resp, err := p.Run(get("/api"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("pre-processing error aborts", func(t *testing.T) {
		router := &testutils.Recorder{}
		p := newTestPipeline(t,
			testutils.NewRegistration("x", &testutils.Recorder{PreErr: errors.New("boom")}, true, false),
			testutils.NewRegistration("", router, false, false),
		)
		_, err := p.Run(get("/"))
		assert.ErrorContains(t, err, "boom")
		assert.Zero(t, router.Total())
	})

	t.Run("post-processing error aborts", func(t *testing.T) {
		p := newTestPipeline(t, testutils.NewRegistration("x", &testutils.Recorder{
			Transform: func(*exchange.Response) (*exchange.Response, error) { return nil, errors.New("bad transform") },
		}, false, true))
		_, err := p.Run(get("/"))
		assert.ErrorContains(t, err, "bad transform")
	})

	t.Run("unsupported post-processing phase aborts", func(t *testing.T) {
		provider := store.NewInMemoryStoreProvider("")
		require.NoError(t, provider.InitStores())
		statPlugin, err := stat.New(plugin.Dependencies{Stores: provider})
		require.NoError(t, err)

		p := newTestPipeline(t, testutils.NewRegistration("stat", statPlugin, false, true))
		_, err = p.Run(get("/"))
		assert.ErrorIs(t, err, plugin.ErrUnsupportedPhase)
	})
}

func TestPipeline_Idempotent(t *testing.T) {
	provider := store.NewInMemoryStoreProvider("")
	require.NoError(t, provider.InitStores())
	statPlugin, err := stat.New(plugin.Dependencies{Stores: provider})
	require.NoError(t, err)

	p := newTestPipeline(t, testutils.NewRegistration("stat", statPlugin, true, false))

	first, err := p.Run(get("/a.png"))
	require.NoError(t, err)
	second, err := p.Run(get("/a.png"))
	require.NoError(t, err)

	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.Equal(t, first.ContentType, second.ContentType)
	assert.Equal(t, first.Body, second.Body)

	stats, err := p.Run(get("/stat"))
	require.NoError(t, err)
	assert.Contains(t, string(stats.Body), "/a.png: 2<br />")
	assert.Contains(t, string(stats.Body), "/stat: 1<br />")
}

func TestPipeline_RunReportsStages(t *testing.T) {
	router := &testutils.Recorder{Name: "r"}
	p := newTestPipeline(t, testutils.NewRegistration("r", router, true, true))

	tests := []struct {
		name string
		req  *exchange.Request
		want []State
	}{
		{
			name: "well formed",
			req:  get("/r"),
			want: []State{StatePreProcessed, StateRouted, StatePostProcessed},
		},
		{
			name: "malformed",
			req:  exchange.ParseRequest("nonsense\r\n\r\n"),
			want: []State{StateShortCircuited},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []State
			_, err := p.run(tt.req, func(s State) { seen = append(seen, s) })
			require.NoError(t, err)
			assert.Equal(t, tt.want, seen)
		})
	}
}
