package template

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/prasenjit/go-oasmock/internal/models"
)

func TestNewEngine(t *testing.T) {
	e := NewEngine()
	if e == nil {
		t.Fatal("NewEngine returned nil")
	}
	if e.rng == nil {
		t.Fatal("Engine rng is nil")
	}
}

func TestProcess_RequestValues(t *testing.T) {
	e := NewEngine()

	jsonBody := `{"user": {"name": "John", "age": 30}, "items": ["a", "b", "c"]}`
	ctx := &Context{
		PathParams:  map[string]string{"id": "123"},
		QueryParams: map[string][]string{"tag": {"first", "second"}, "empty": {}},
		Headers:     map[string][]string{"Content-Type": {"application/json"}},
		Body:        jsonBody,
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"path param", "ID: {{path.id}}", "ID: 123"},
		{"spaces and leading dot", "ID: {{ .path.id }}", "ID: 123"},
		{"missing path param", "ID: {{path.missing}}", "ID: "},
		{"query uses first value", "Tag: {{query.tag}}", "Tag: first"},
		{"empty query values", "Tag: {{query.empty}}", "Tag: "},
		{"header case insensitive", "Type: {{header.content-type}}", "Type: application/json"},
		{"body nested", "Name: {{body.user.name}}", "Name: John"},
		{"body number", "Age: {{body.user.age}}", "Age: 30"},
		{"body array count", "Count: {{body.items.#}}", "Count: 3"},
		{"body missing", "Missing: {{body.nonexistent}}", "Missing: "},
		{"unknown source", "{{env.HOME}}", ""},
		{"no variables", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Process(tt.template, ctx)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestProcess_NilContext(t *testing.T) {
	e := NewEngine()
	if got := e.Process("{{path.id}}", nil); got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}

func TestProcess_RandomValues(t *testing.T) {
	e := NewSeededEngine(7)
	ctx := &Context{}

	t.Run("int range", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			n, err := strconv.Atoi(e.Process("{{random.int(50,200)}}", ctx))
			if err != nil {
				t.Fatalf("expected integer: %v", err)
			}
			if n < 50 || n > 200 {
				t.Errorf("expected value in [50,200], got %d", n)
			}
		}
	})

	t.Run("reversed bounds", func(t *testing.T) {
		n, _ := strconv.Atoi(e.Process("{{random.int(9, 3)}}", ctx))
		if n < 3 || n > 9 {
			t.Errorf("expected value in [3,9], got %d", n)
		}
	})

	t.Run("uuid", func(t *testing.T) {
		uuidPattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
		if got := e.Process("{{random.uuid}}", ctx); !uuidPattern.MatchString(got) {
			t.Errorf("expected uuid, got %q", got)
		}
	})

	t.Run("float range", func(t *testing.T) {
		f, err := strconv.ParseFloat(e.Process("{{random.float(1,2)}}", ctx), 64)
		if err != nil || f < 1 || f > 2 {
			t.Errorf("expected float in [1,2], got %v (%v)", f, err)
		}
	})

	t.Run("bool", func(t *testing.T) {
		got := e.Process("{{random.bool}}", ctx)
		if got != "true" && got != "false" {
			t.Errorf("expected bool, got %q", got)
		}
	})
}

func TestDuration(t *testing.T) {
	e := NewEngine()
	ctx := &Context{QueryParams: map[string][]string{"delay": {"25"}, "bad": {"soon"}, "go": {"1.5s"}}}

	tests := []struct {
		expr     string
		expected time.Duration
	}{
		{"{{query.delay}}", 25 * time.Millisecond},
		{"{{query.go}}", 1500 * time.Millisecond},
		{"{{query.bad}}", 0},
		{"{{query.missing}}", 0},
		{"-5", 0},
		{"2.5", 2500 * time.Microsecond},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := e.Duration(tt.expr, ctx); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDelayFunc(t *testing.T) {
	e := NewEngine()

	fixed, err := e.DelayFunc("100")
	if err != nil {
		t.Fatalf("DelayFunc failed: %v", err)
	}
	if got := fixed(nil); got != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", got)
	}

	goDuration, err := e.DelayFunc("2s")
	if err != nil || goDuration(nil) != 2*time.Second {
		t.Errorf("expected 2s delay, got err %v", err)
	}

	none, err := e.DelayFunc("  ")
	if err != nil || none != nil {
		t.Errorf("expected nil delay for empty expression, got err %v", err)
	}

	if _, err := e.DelayFunc("later"); err == nil {
		t.Error("expected error for invalid delay")
	}
	if _, err := e.DelayFunc("-10"); err == nil {
		t.Error("expected error for negative delay")
	}

	dynamic, err := e.DelayFunc("{{header.X-Delay}}")
	if err != nil {
		t.Fatalf("DelayFunc failed: %v", err)
	}
	req := &models.Request{
		Header: http.Header{"X-Delay": {"40"}},
		Query:  url.Values{},
	}
	if got := dynamic(req); got != 40*time.Millisecond {
		t.Errorf("expected 40ms, got %v", got)
	}
}

func TestNewContext(t *testing.T) {
	req := &models.Request{
		PathParams: map[string]string{"id": "7"},
		Query:      url.Values{"q": {"x"}},
		Header:     http.Header{"A": {"b"}},
		Body:       []byte(`{"n":1}`),
	}
	ctx := NewContext(req)
	if ctx.PathParams["id"] != "7" || ctx.QueryParams["q"][0] != "x" || ctx.Body != `{"n":1}` {
		t.Errorf("unexpected context %+v", ctx)
	}
	if NewContext(nil) == nil {
		t.Error("expected empty context for nil request")
	}
}

func TestIsTemplate(t *testing.T) {
	if !IsTemplate("{{query.delay}}") {
		t.Error("expected template")
	}
	if IsTemplate("100") {
		t.Error("expected plain value")
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		funcName string
		expected []string
	}{
		{"single param", "int(100)", "int", []string{"100"}},
		{"multiple params", "int(1,100)", "int", []string{"1", "100"}},
		{"wrong func name", "int(1,100)", "float", nil},
		{"empty params", "int()", "int", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseParams(tt.key, tt.funcName)
			if tt.expected == nil && result != nil {
				t.Errorf("expected nil, got %v", result)
			} else if tt.expected != nil && result == nil {
				t.Errorf("expected %v, got nil", tt.expected)
			} else if len(result) != len(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}
