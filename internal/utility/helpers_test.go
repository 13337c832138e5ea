package utility

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets correct headers and status", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteJSON(rr, http.StatusOK, map[string]string{"key": "value"})

		if rr.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %q", ct)
		}
	})

	t.Run("encodes struct correctly", func(t *testing.T) {
		rr := httptest.NewRecorder()

		type testStruct struct {
			Name  string `json:"name"`
			Value int    `json:"value"`
		}
		WriteJSON(rr, http.StatusCreated, testStruct{Name: "test", Value: 42})

		expected := `{"name":"test","value":42}`
		// Response includes newline from json.Encoder
		got := rr.Body.String()
		if got != expected+"\n" {
			t.Errorf("expected body %q, got %q", expected+"\n", got)
		}
	})

	t.Run("handles nil value", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteJSON(rr, http.StatusOK, nil)

		if rr.Body.String() != "null\n" {
			t.Errorf("expected null, got %q", rr.Body.String())
		}
	})
}

func TestHttpError(t *testing.T) {
	rr := httptest.NewRecorder()
	HttpError(rr, http.StatusBadRequest, "something went wrong")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}

	expected := `{"error":"something went wrong"}`
	got := rr.Body.String()
	if got != expected+"\n" {
		t.Errorf("expected body %q, got %q", expected+"\n", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		ID string `json:"id"`
	}
	testCases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"id":"abc123xyz789"}`, false},
		{"unknown field", `{"id":"abc","extra":1}`, true},
		{"trailing object", `{"id":"a"}{"id":"b"}`, true},
		{"not json", `id=abc`, true},
		{"empty", ``, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.input))
			var b body
			err := DecodeJSON(req, &b)
			if (err != nil) != tc.wantErr {
				t.Errorf("DecodeJSON(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestGetenv(t *testing.T) {
	t.Run("returns environment variable when set", func(t *testing.T) {
		key := "TEST_GETENV_VAR"
		expected := "test_value"
		os.Setenv(key, expected)
		defer os.Unsetenv(key)

		got := Getenv(key, "default")
		if got != expected {
			t.Errorf("expected %q, got %q", expected, got)
		}
	})

	t.Run("returns default when not set", func(t *testing.T) {
		key := "TEST_GETENV_UNSET_VAR"
		os.Unsetenv(key)

		expected := "default_value"
		got := Getenv(key, expected)
		if got != expected {
			t.Errorf("expected %q, got %q", expected, got)
		}
	})

	t.Run("returns default when empty", func(t *testing.T) {
		key := "TEST_GETENV_EMPTY_VAR"
		os.Setenv(key, "")
		defer os.Unsetenv(key)

		expected := "default_value"
		got := Getenv(key, expected)
		if got != expected {
			t.Errorf("expected %q for empty var, got %q", expected, got)
		}
	})
}

func TestIntPtr(t *testing.T) {
	testCases := []int{0, 1, -1, 42, 1000000}

	for _, val := range testCases {
		ptr := IntPtr(val)
		if ptr == nil {
			t.Errorf("IntPtr(%d) returned nil", val)
			continue
		}
		if *ptr != val {
			t.Errorf("IntPtr(%d) = %d, want %d", val, *ptr, val)
		}
	}
}
