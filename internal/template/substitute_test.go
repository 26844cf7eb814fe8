package template

import (
	"regexp"
	"strings"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestSubstitute_Variables(t *testing.T) {
	vars := Vars{"seed": "abc", "size": "256"}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no placeholders", "/avatar/static", "/avatar/static"},
		{"empty", "", ""},
		{"single", "/avatar/${seed}", "/avatar/abc"},
		{"multiple", "/avatar/${seed}?size=${size}", "/avatar/abc?size=256"},
		{"unterminated left alone", "/avatar/${seed", "/avatar/${seed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Substitute(tc.input, vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSubstitute_EnvironmentVariable(t *testing.T) {
	t.Setenv("OCTAPULSE_TEST_SEED", "from-env")

	got, err := Substitute("/avatar/${env:OCTAPULSE_TEST_SEED}", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/avatar/from-env" {
		t.Errorf("expected '/avatar/from-env', got %q", got)
	}
}

func TestSubstitute_MissingEnvVariable(t *testing.T) {
	_, err := Substitute("${env:OCTAPULSE_SURELY_UNSET_12345}", nil)
	if err == nil {
		t.Fatal("expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "OCTAPULSE_SURELY_UNSET_12345") {
		t.Errorf("expected env var name in error, got: %v", err)
	}
}

func TestSubstitute_MultipleErrors(t *testing.T) {
	_, err := Substitute("/${first}/${second}", Vars{})
	if err == nil {
		t.Fatal("expected error for missing variables")
	}
	if !strings.Contains(err.Error(), "first") || !strings.Contains(err.Error(), "second") {
		t.Errorf("expected both missing variables in error, got: %v", err)
	}
}

func TestSubstitute_FreshUUIDPerCall(t *testing.T) {
	a, err := Substitute("/avatar/${uuid()}", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := Substitute("/avatar/${uuid()}", nil)

	if a == b {
		t.Errorf("expected distinct paths, got %q twice", a)
	}
	if !uuidPattern.MatchString(strings.TrimPrefix(a, "/avatar/")) {
		t.Errorf("not a UUID path: %s", a)
	}
}

func TestSubstituteMap(t *testing.T) {
	headers := map[string]string{
		"X-Secret-Key": "${secret}",
		"X-Request-ID": "${uuid()}",
		"Accept":       "image/*",
	}

	got, err := SubstituteMap(headers, Vars{"secret": "s3cr3t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["X-Secret-Key"] != "s3cr3t" {
		t.Errorf("expected secret substituted, got %q", got["X-Secret-Key"])
	}
	if !uuidPattern.MatchString(got["X-Request-ID"]) {
		t.Errorf("expected UUID request id, got %q", got["X-Request-ID"])
	}
	if got["Accept"] != "image/*" {
		t.Errorf("expected static header kept, got %q", got["Accept"])
	}
}

func TestSubstituteMap_NilMap(t *testing.T) {
	got, err := SubstituteMap(nil, nil)
	if err != nil || got != nil {
		t.Errorf("expected nil, nil; got %v, %v", got, err)
	}
}

func TestSubstituteMap_Error(t *testing.T) {
	_, err := SubstituteMap(map[string]string{"X-Secret-Key": "${secret}"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "X-Secret-Key") {
		t.Errorf("expected header name in error, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("/avatar/${uuid()}", nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Validate("/avatar/${random(9,1)}", nil); err == nil {
		t.Error("expected error for inverted range")
	}
}
