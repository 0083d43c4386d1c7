// Copyright 2025 James Ross
package messenger

import (
	"errors"
	"testing"

	"github.com/adaspeas/deliveryd/internal/joberr"
)

func TestClassifyTelegramErr(t *testing.T) {
	cases := []struct {
		msg  string
		want joberr.Class
	}{
		{"Too Many Requests: retry after 7", joberr.ClassFlood},
		{"Bad Request: wrong file_id specified", joberr.ClassHandleInvalid},
		{"Bad Request: chat not found", joberr.ClassNotFound},
		{"Forbidden: bot was blocked by the user", joberr.ClassDenied},
		{"something else entirely", joberr.ClassTransient},
	}
	for _, c := range cases {
		got := joberr.Classify(classifyTelegramErr(errors.New(c.msg)))
		if got != c.want {
			t.Errorf("classify(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	d := parseRetryAfter("too many requests: retry after 12")
	if d.Seconds() != 12 {
		t.Fatalf("expected 12s, got %v", d)
	}
	d = parseRetryAfter("no hint here")
	if d.Seconds() != 5 {
		t.Fatalf("expected default 5s, got %v", d)
	}
}
