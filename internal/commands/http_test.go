package commands

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execHTTP(t *testing.T, vars map[string]any, inputs map[string]string) (Outputs, error) {
	t.Helper()
	out, _, err := invoke(t, NewRestAPICommand(HTTPConfig{}), vars, inputs)
	return out, err
}

func TestRestApi_GET_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"name":"ada","tags":["a","b"]}}`))
	}))
	defer srv.Close()

	out, err := execHTTP(t, map[string]any{"base": srv.URL}, map[string]string{
		"method":    `"get"`,
		"url":       `base + "/users"`,
		"query":     `"page=1"`,
		"headers":   `{"X-Test": "yes"}`,
		"json_path": `"user.name"`,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, out["status"])
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "ada", out["extract"])
	assert.JSONEq(t, `{"user":{"name":"ada","tags":["a","b"]}}`, out["response"].(string))
}

func TestRestApi_POST_Body(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		b, _ := io.ReadAll(r.Body)
		var payload map[string]any
		assert.NoError(t, json.Unmarshal(b, &payload))
		assert.Equal(t, "hi", payload["msg"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`created`))
	}))
	defer srv.Close()

	out, err := execHTTP(t, map[string]any{"url": srv.URL}, map[string]string{
		"method":  `"POST"`,
		"url":     "url",
		"body":    `'{"msg":"hi"}'`,
		"headers": `"Content-Type: application/json"`,
	})
	require.NoError(t, err)
	assert.Equal(t, 201, out["status"])
	assert.Equal(t, "created", out["response"])
}

func TestRestApi_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "user" || p != "pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	out, err := execHTTP(t, map[string]any{"url": srv.URL}, map[string]string{
		"method": `"GET"`, "url": "url", "username": `"user"`, "password": `"pass"`,
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "ok", out["response"])
}

func TestRestApi_NonSuccessStatusIsRuntimeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer srv.Close()

	out, err := execHTTP(t, map[string]any{"url": srv.URL}, map[string]string{"method": `"GET"`, "url": "url"})
	require.NoError(t, err)
	assert.Equal(t, 404, out["status"])
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "404")
	assert.Equal(t, "missing", out["response"])
}

func TestRestApi_NotModifiedIsRuntimeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	out, err := execHTTP(t, map[string]any{"url": srv.URL}, map[string]string{"method": `"GET"`, "url": "url"})
	require.NoError(t, err)
	assert.Equal(t, 304, out["status"])
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "304")
}

func TestRestApi_ResponseBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("  éééé  "))
	}))
	defer srv.Close()

	cmd := NewRestAPICommand(HTTPConfig{MaxResponseBody: 5})
	out, _, err := invoke(t, cmd, map[string]any{"url": srv.URL}, map[string]string{"method": `"GET"`, "url": "url"})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "  é", out["response"], "cut on a rune boundary, leading spaces kept")

	out, _, err = invoke(t, NewRestAPICommand(HTTPConfig{}), map[string]any{"url": srv.URL}, map[string]string{"method": `"GET"`, "url": "url"})
	require.NoError(t, err)
	assert.Equal(t, "  éééé  ", out["response"])
}

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		limit int64
		want  string
	}{
		{"under limit", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"mid rune", "éé…", 5, "éé"},
		{"rune end", "éé…", 4, "éé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readLimited(strings.NewReader(tt.body), tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestRestApi_NetworkFailureIsRuntimeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	out, err := execHTTP(t, map[string]any{"url": addr}, map[string]string{"method": `"GET"`, "url": "url"})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, 0, out["status"])
	assert.NotEmpty(t, out["error"])
}

func TestRestApi_UnsupportedMethodHalts(t *testing.T) {
	_, err := execHTTP(t, nil, map[string]string{"method": `"BREW"`, "url": `"http://localhost"`})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInvalidInput, schema.CodeOf(err))
}

func TestRestApi_MissingURL(t *testing.T) {
	_, err := execHTTP(t, nil, map[string]string{"method": `"GET"`})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeMissingInput, schema.CodeOf(err))
}

func TestExtract(t *testing.T) {
	body := `{"a":{"b":[1,2]},"n":3,"s":"x"}`
	assert.Equal(t, "", extract(body, ""))
	assert.Nil(t, extract(body, "zzz"))
	assert.Equal(t, `[1,2]`, extract(body, "a.b"))
	assert.Equal(t, 3.0, extract(body, "n"))
	assert.Equal(t, "x", extract(body, "s"))
}

func TestParseStringMap(t *testing.T) {
	m, err := parseStringMap("a=1&b=two")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "two"}, m)

	m, err = parseStringMap("Accept: text/plain\nX-Id: 7")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Accept": "text/plain", "X-Id": "7"}, m)

	m, err = parseStringMap(`{"k": 1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "1"}, m)

	_, err = toStringMap([]any{1})
	assert.Error(t, err)
}
